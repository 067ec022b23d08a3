// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

// Server protocol errors, using the well-known JSON-RPC values.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
)

// Server custom errors, in the reserved block -32000..-32099.
const (
	CodeMethodException = -32000
	CodeUnhandled       = -32001
	CodeMissingFile     = -32002
	CodeJSONEncoding    = -32003
)

// Client errors. These never travel on the wire; the client raises them
// locally when a call could not complete a meaningful round trip.
const (
	CodeRequest           = 10000
	CodeConnectionRefused = 10001
	CodeResponseParse     = 10002
)

var messages = map[int]string{
	CodeInvalidRequest:  "Invalid request.",
	CodeParse:           "Parse error.",
	CodeMethodNotFound:  "Method not found.",
	CodeMethodException: "Method call raised an exception.",
	CodeUnhandled:       "Unhandled exception.",
	CodeMissingFile:     "Missing file object.",
	CodeJSONEncoding:    "Object is not JSON serializable.",

	CodeRequest:           "Request error",
	CodeConnectionRefused: "Connection refused",
	CodeResponseParse:     "Error parsing JSON",
}

// Message returns the default message for code,
// or the empty string if the code is not reserved.
func Message(code int) string {
	return messages[code]
}

// IsClientCode reports whether code is in the client-side range.
func IsClientCode(code int) bool {
	return code >= CodeRequest
}
