// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"io"
	"mime"
	"net/http"
	"time"

	"krpc.io/dispatch"
	"krpc.io/errors"
	"krpc.io/framer"
	"krpc.io/log"
	"krpc.io/metric"
	"krpc.io/protocol"
)

// ServerOptions configures the HTTP binding of a Dispatcher.
type ServerOptions struct {
	// MaxMemory is the number of bytes of a multipart body held in
	// memory; the remainder is spilled to temporary files.
	// Zero means DefaultMaxMemory.
	MaxMemory int64
}

// DefaultMaxMemory is the default value of ServerOptions.MaxMemory.
const DefaultMaxMemory = 32 << 20

const (
	jsonContentType   = "application/json"
	streamContentType = "application/octet-stream"
)

type serverImpl struct {
	d         *dispatch.Dispatcher
	maxMemory int64
}

// NewServer returns an http.Handler that serves the methods of d.
func NewServer(d *dispatch.Dispatcher, opts ServerOptions) http.Handler {
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = DefaultMaxMemory
	}
	return &serverImpl{
		d:         d,
		maxMemory: opts.MaxMemory,
	}
}

// ServeHTTP decodes the request envelope, dispatches it and writes
// the outcome.
func (s *serverImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op errors.Op = "rpc.ServeHTTP"
	m, span := metric.NewSpan(op)
	defer m.Done()
	start := time.Now()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sp := span.StartSpan("rpc.readEnvelope")
	text, form, err := s.readEnvelope(r)
	sp.End()
	if err != nil {
		log.Debug.Printf("%s: %s %s: %v", op, r.Method, r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if form != nil {
		defer form.Close()
	}

	req, err := protocol.DecodeRequest([]byte(text))
	if err != nil {
		writeError(w, protocol.AsError(err))
		return
	}
	if form != nil {
		params, err := form.Resolve(req.Params)
		if err != nil {
			writeError(w, protocol.AsError(err))
			return
		}
		req.Params = params
	}

	sp = span.StartSpan(errors.Op("dispatch " + req.Method))
	outcome := s.d.Dispatch(r.Context(), req)
	if outcome.Err != nil {
		sp.SetAnnotation(outcome.Err.Message)
	}
	sp.End()

	if stream, ok := outcome.Stream(); ok {
		writeStream(w, stream)
	} else {
		writeResponse(w, outcome.Response())
	}
	log.Debug.Printf("%s: %s %q in %v", op, r.Method, req.Method, time.Since(start))
}

// errMissingEnvelope is reported with status 400 when a request
// carries no envelope.
var errMissingEnvelope = errors.Str("Missing 'json' parameter")

// readEnvelope returns the text of the request envelope and, for a
// multipart request, the decoded form, which the caller must close.
func (s *serverImpl) readEnvelope(r *http.Request) (string, *framer.Form, error) {
	if r.Method == http.MethodPost {
		mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			form, err := framer.Decode(r.Body, params["boundary"], s.maxMemory)
			if err != nil {
				return "", nil, err
			}
			text, ok := form.JSON()
			if !ok {
				form.Close()
				return "", nil, errMissingEnvelope
			}
			return text, form, nil
		}
	}
	if err := r.ParseForm(); err != nil {
		return "", nil, errors.E(errors.Syntax, err)
	}
	for _, key := range []string{"json", "JSON"} {
		if v, ok := r.Form[key]; ok && len(v) > 0 {
			return v[0], nil, nil
		}
	}
	return "", nil, errMissingEnvelope
}

// writeResponse encodes resp in full before writing any of it, so that
// a result that cannot be encoded is still reported as an error envelope.
func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	b, err := protocol.EncodeResponse(resp)
	if err != nil {
		log.Error.Printf("rpc: encoding response: %v", err)
		b = protocol.EncodeError(protocol.AsError(err))
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.Write(b)
}

func writeError(w http.ResponseWriter, e *protocol.Error) {
	writeResponse(w, &protocol.Response{Error: e})
}

// writeStream copies a stream result to w and closes it if it is a Closer.
func writeStream(w http.ResponseWriter, r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	w.Header().Set("Content-Type", streamContentType)
	// Hide WriterTo and ReaderFrom so the copy goes through the chunk buffer.
	dst, src := struct{ io.Writer }{w}, struct{ io.Reader }{r}
	if _, err := io.CopyBuffer(dst, src, make([]byte, framer.ChunkSize)); err != nil {
		// Headers are gone; all we can do is cut the response short.
		log.Error.Printf("rpc: writing stream: %v", err)
	}
}
