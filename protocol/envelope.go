// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Request is the envelope of a method invocation.
type Request struct {
	// Method is the dotted path of the method to call.
	Method string `json:"method"`

	// Params holds the arguments: a []interface{} for positional
	// arguments or a map[string]interface{} for named ones.
	Params interface{} `json:"params"`

	// HookParams holds the arguments of the server's pre-method hook,
	// in the same shapes as Params.
	HookParams interface{} `json:"pmhparams,omitempty"`
}

// Response is the envelope of a method outcome.
// Exactly one of Result and Error is meaningful; Error wins if set.
type Response struct {
	Result interface{}
	Error  *Error
}

// EncodeRequest returns the JSON text of a request envelope.
func EncodeRequest(method string, params, hookParams interface{}) ([]byte, error) {
	b, err := json.Marshal(&Request{
		Method:     method,
		Params:     params,
		HookParams: hookParams,
	})
	if err != nil {
		return nil, NewError(CodeRequest, err.Error())
	}
	return b, nil
}

// DecodeRequest parses the JSON text of a request envelope.
// Numbers are decoded as json.Number so integers survive unchanged.
// Text that is not JSON yields an *Error with CodeParse; JSON that is
// not an object yields CodeInvalidRequest.
func DecodeRequest(data []byte) (*Request, error) {
	var v interface{}
	if err := unmarshal(data, &v); err != nil {
		return nil, NewError(CodeParse, err.Error())
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, NewError(CodeInvalidRequest, "request is not a JSON object")
	}
	return &Request{
		Method:     methodName(obj["method"]),
		Params:     obj["params"],
		HookParams: obj["pmhparams"],
	}, nil
}

// methodName coerces the method member to a string.
// An absent or null method is the empty string.
func methodName(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(v)
}

// EncodeResponse returns the JSON text of a response envelope.
// If the result cannot be represented in JSON, the returned error is an
// *Error with CodeJSONEncoding, which the caller should send instead.
func EncodeResponse(r *Response) ([]byte, error) {
	if r.Error != nil {
		return EncodeError(r.Error), nil
	}
	b, err := json.Marshal(struct {
		Result interface{} `json:"result"`
	}{r.Result})
	if err != nil {
		return nil, NewError(CodeJSONEncoding, err.Error())
	}
	return b, nil
}

// EncodeError returns the JSON text of a response envelope carrying e.
func EncodeError(e *Error) []byte {
	b, err := json.Marshal(struct {
		Error *Error `json:"error"`
	}{e})
	if err != nil {
		// An Error holds only an int and two strings.
		panic(err)
	}
	return b
}

// DecodeResponse parses the JSON text of a response envelope and returns
// its result. A response carrying an error entry returns that entry as an
// *Error. Text that is not JSON, or an object with neither a result nor an
// error member, yields an *Error with CodeResponseParse.
func DecodeResponse(data []byte) (interface{}, error) {
	var result interface{}
	if err := DecodeResponseInto(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DecodeResponseInto is like DecodeResponse but stores the result in the
// value pointed to by v, following the rules of json.Unmarshal.
func DecodeResponseInto(data []byte, v interface{}) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return NewError(CodeResponseParse, err.Error())
	}
	if raw, ok := env["result"]; ok {
		if err := json.Unmarshal(raw, v); err != nil {
			return NewError(CodeResponseParse, err.Error())
		}
		return nil
	}
	if raw, ok := env["error"]; ok {
		var e Error
		if err := json.Unmarshal(raw, &e); err != nil {
			return NewError(CodeResponseParse, err.Error())
		}
		if e.Message == "" {
			e.Message = Message(e.Code)
		}
		return &e
	}
	return NewError(CodeResponseParse, "response has neither result nor error")
}

// unmarshal decodes a single JSON value from data into v,
// using json.Number for numbers and rejecting trailing data.
func unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("invalid character after top-level value")
	}
	return nil
}
