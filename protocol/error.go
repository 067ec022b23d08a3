// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"fmt"
)

// Error is an error entry of a response envelope.
//
// A method that returns an *Error (possibly wrapped) reports a managed
// failure: the dispatcher sends it to the caller verbatim instead of
// treating it as a server fault. On the client, every error reported by
// the server, and every local failure of the round trip, is an *Error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Info    string `json:"info,omitempty"`
}

// NewError returns an *Error with the given code, its default message
// and the given diagnostic info.
func NewError(code int, info string) *Error {
	return &Error{
		Code:    code,
		Message: Message(code),
		Info:    info,
	}
}

// Managed returns an *Error for application code to return from a method.
// The dispatcher reports a zero code as CodeMethodException and an empty
// message as the default message for the code.
func Managed(code int, message, info string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Info:    info,
	}
}

func (e *Error) Error() string {
	txt := fmt.Sprintf("%s (%d)", e.Message, e.Code)
	if e.Info != "" {
		txt = fmt.Sprintf("%s: %s", txt, e.Info)
	}
	return txt
}

// AsError returns the first *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the code of the *Error in err's chain,
// or zero if there is none.
func CodeOf(err error) int {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return 0
}
