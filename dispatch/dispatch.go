// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch resolves and invokes the method named by a request
// envelope and turns its outcome into a result or a protocol error.
package dispatch // import "krpc.io/dispatch"

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"

	"krpc.io/log"
	"krpc.io/protocol"
)

// Dispatcher invokes registered methods.
// It is configured before serving and is then safe for concurrent use.
type Dispatcher struct {
	// Registry holds the methods to serve.
	Registry *Registry

	// PreHook, if non-empty, names a registered method that is invoked
	// with the request's hook params before every call. Its result is
	// discarded; its failures are reported like those of the call.
	PreHook string
}

// New returns a Dispatcher serving reg.
func New(reg *Registry, preHook string) *Dispatcher {
	return &Dispatcher{Registry: reg, PreHook: preHook}
}

// Outcome is the result of dispatching one request.
// Exactly one of Result and Err is meaningful; Err wins if set.
type Outcome struct {
	Result interface{}
	Err    *protocol.Error
}

// Stream returns the result as a reader if the method returned one,
// in which case it is sent as raw bytes rather than JSON.
func (o Outcome) Stream() (io.Reader, bool) {
	if o.Err != nil {
		return nil, false
	}
	r, ok := o.Result.(io.Reader)
	return r, ok
}

// Response returns the outcome as a response envelope.
func (o Outcome) Response() *protocol.Response {
	return &protocol.Response{Result: o.Result, Error: o.Err}
}

func failed(e *protocol.Error) Outcome {
	return Outcome{Err: e}
}

// Dispatch invokes the method named by req, after the pre-method hook
// if one is configured. It never panics; every failure is an Outcome
// carrying a protocol error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) Outcome {
	if req.Method == "" {
		return failed(protocol.NewError(protocol.CodeInvalidRequest, "Method not specified."))
	}
	m, ok := d.Registry.Lookup(req.Method)
	if !ok {
		return failed(protocol.NewError(protocol.CodeMethodNotFound, req.Method))
	}

	if d.PreHook != "" {
		hook, ok := d.Registry.Lookup(d.PreHook)
		if !ok {
			return failed(protocol.NewError(protocol.CodeMethodNotFound, d.PreHook))
		}
		if _, err := invoke(ctx, d.PreHook, hook, req.HookParams); err != nil {
			return failed(err)
		}
	}

	res, err := invoke(ctx, req.Method, m, req.Params)
	if err != nil {
		return failed(err)
	}
	if isEmpty(res) {
		res = map[string]interface{}{}
	}
	return Outcome{Result: res}
}

// invoke calls m, converting a returned error or a panic into a
// protocol error.
func invoke(ctx context.Context, name string, m Method, raw interface{}) (res interface{}, perr *protocol.Error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("dispatch: %s: panic: %v", name, r)
			perr = protocol.NewError(protocol.CodeUnhandled, fmt.Sprintf("%s: panic: %v\n\n%s", name, r, debug.Stack()))
		}
	}()
	log.Debug.Printf("dispatch: invoking %s", name)
	res, err := m(ctx, NewParams(raw))
	if err != nil {
		return nil, failure(name, err)
	}
	return res, nil
}

// failure converts an error returned by a method into a protocol error.
func failure(name string, err error) *protocol.Error {
	if e := protocol.AsError(err); e != nil {
		managed := *e
		if managed.Code == 0 {
			managed.Code = protocol.CodeMethodException
		}
		if managed.Message == "" {
			managed.Message = protocol.Message(managed.Code)
		}
		return &managed
	}
	log.Info.Printf("dispatch: %s: %v", name, err)
	return protocol.NewError(protocol.CodeUnhandled, fmt.Sprintf("%s: %v\n\n%s", name, err, debug.Stack()))
}

// isEmpty reports whether v is a "no value" result: nil, false, zero,
// the empty string or an empty list or map.
func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return err == nil && f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
