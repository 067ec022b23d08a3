// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"encoding/json"
	"io"
	"strconv"

	"krpc.io/errors"
)

// Params holds the arguments of a call. At most one of Positional and
// Named is non-empty.
type Params struct {
	Positional []interface{}
	Named      map[string]interface{}
}

// NewParams normalizes the params member of a request envelope.
// A list becomes positional arguments and an object named arguments.
// Absent, null or empty params mean no arguments at all. Any other
// value is a single positional argument.
func NewParams(raw interface{}) *Params {
	switch v := raw.(type) {
	case nil:
		return &Params{}
	case []interface{}:
		return &Params{Positional: v}
	case map[string]interface{}:
		return &Params{Named: v}
	}
	if isEmpty(raw) {
		return &Params{}
	}
	return &Params{Positional: []interface{}{raw}}
}

// Len returns the number of arguments.
func (p *Params) Len() int {
	return len(p.Positional) + len(p.Named)
}

// IsNamed reports whether the arguments were passed by name.
func (p *Params) IsNamed() bool {
	return len(p.Named) > 0
}

// Arg returns the i'th positional argument.
func (p *Params) Arg(i int) (interface{}, error) {
	if i < 0 || i >= len(p.Positional) {
		return nil, errors.E(errors.Invalid, errors.Errorf("missing argument %d (have %d)", i, len(p.Positional)))
	}
	return p.Positional[i], nil
}

// Value returns the named argument.
func (p *Params) Value(name string) (interface{}, error) {
	v, ok := p.Named[name]
	if !ok {
		return nil, errors.E(errors.Invalid, errors.Errorf("missing argument %q", name))
	}
	return v, nil
}

// Get returns an argument by position (an int) or by name (a string).
func (p *Params) Get(key interface{}) (interface{}, error) {
	switch k := key.(type) {
	case int:
		return p.Arg(k)
	case string:
		return p.Value(k)
	}
	return nil, errors.E(errors.Invalid, errors.Errorf("bad argument key %v", key))
}

// String returns the argument identified by key, which must be a string.
func (p *Params) String(key interface{}) (string, error) {
	v, err := p.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, "string", v)
	}
	return s, nil
}

// Int returns the argument identified by key, which must be an integer.
func (p *Params) Int(key interface{}) (int64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, typeError(key, "integer", v)
}

// Float returns the argument identified by key, which must be a number.
func (p *Params) Float(key interface{}) (float64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		if f, err := strconv.ParseFloat(string(n), 64); err == nil {
			return f, nil
		}
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, typeError(key, "number", v)
}

// Bool returns the argument identified by key, which must be a boolean.
func (p *Params) Bool(key interface{}) (bool, error) {
	v, err := p.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(key, "boolean", v)
	}
	return b, nil
}

// Reader returns the argument identified by key, which must be an
// uploaded file or another readable stream.
func (p *Params) Reader(key interface{}) (io.Reader, error) {
	v, err := p.Get(key)
	if err != nil {
		return nil, err
	}
	r, ok := v.(io.Reader)
	if !ok {
		return nil, typeError(key, "file", v)
	}
	return r, nil
}

// Decode stores the argument identified by key in the value pointed to
// by v, following the rules of json.Unmarshal.
func (p *Params) Decode(key interface{}, v interface{}) error {
	arg, err := p.Get(key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(arg)
	if err != nil {
		return errors.E(errors.Invalid, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.E(errors.Invalid, errors.Errorf("argument %v: %v", key, err))
	}
	return nil
}

func typeError(key interface{}, want string, got interface{}) error {
	return errors.E(errors.Invalid, errors.Errorf("argument %v: want %s, got %T", key, want, got))
}
