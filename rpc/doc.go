// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package rpc provides the HTTP binding of the RPC protocol: a server that
exposes a dispatch.Dispatcher and a client that calls methods by dotted path.

RPC wire protocol

A call is an HTTP request to the server's root URL carrying a request
envelope, a JSON object

	{"method": "math.add", "params": [1, 2], "pmhparams": {"token": "t"}}

where params is a list of positional arguments or an object of named ones,
and pmhparams, if present, holds the arguments of the server's pre-method
hook. The envelope travels in a field named "json" (or "JSON"): in the query
string of a GET, in an application/x-www-form-urlencoded POST body, or as the
first part of a multipart/form-data POST body.

A call with binary arguments uses the multipart form. Each binary argument is
replaced in params by a placeholder string "__file__:<id>" and its bytes are
sent as a part of that name. The boundary is

	-----KrOnOsThEwIzArD

and the Content-Length of the body is exact.

The response is a JSON object with either a "result" or an "error" member.
An error is an object {"code": ..., "message": ..., "info": ...}; see package
protocol for the codes. A method whose result is a stream of bytes instead
replies with Content-Type application/octet-stream and the raw bytes.

A request with no envelope at all receives HTTP status 400. Every other
failure, including a malformed envelope, is reported in an error envelope
with status 200.
*/
package rpc // import "krpc.io/rpc"
