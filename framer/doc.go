// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package framer frames a JSON request envelope and any number of binary
payloads into a single multipart/form-data body, and reverses the process
on the server.

Wire format

A framed body is a sequence of parts separated by a fixed boundary line.
The first part is named "json" and holds the request envelope. Every
other part is named by a file placeholder, a string of the form

	__file__:<id>

that stands in the envelope's parameter list where the binary value was.
Binary parts declare a filename and a content type inferred from it:

	-------KrOnOsThEwIzArD\r\n
	Content-Disposition: form-data; name="json"\r\n
	\r\n
	{"method":"files.size","params":["__file__:01H..."]}\r\n
	-------KrOnOsThEwIzArD\r\n
	Content-Disposition: form-data; name="__file__:01H..."; filename="a.txt"\r\n
	Content-Type: text/plain; charset=utf-8\r\n
	\r\n
	<bytes>\r\n
	-------KrOnOsThEwIzArD--\r\n
	\r\n

The total length of a body is known before any byte is written, so a
client can declare Content-Length instead of using chunked encoding.
Payloads are copied in ChunkSize pieces and are never held in memory
as a whole.
*/
package framer // import "krpc.io/framer"
