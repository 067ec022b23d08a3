// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Method implements an RPC method. A returned *protocol.Error, possibly
// wrapped, is reported to the caller verbatim; any other error, or a
// panic, is reported as an unhandled exception.
// If the result is an io.Reader the server streams its bytes to the
// caller instead of encoding it as JSON.
type Method func(ctx context.Context, p *Params) (interface{}, error)

// Registry maps dotted method paths to Methods.
// It is built before serving and must not be modified afterwards;
// lookups are then safe for concurrent use.
type Registry struct {
	methods map[string]Method
	docs    map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Method),
		docs:    make(map[string]string),
	}
}

// Register adds m under the dotted path name.
// It panics if name is malformed or already registered.
func (r *Registry) Register(name string, m Method) {
	if err := validName(name); err != nil {
		panic(err)
	}
	if m == nil {
		panic(fmt.Sprintf("dispatch: nil method %q", name))
	}
	if _, dup := r.methods[name]; dup {
		panic(fmt.Sprintf("dispatch: method %q registered twice", name))
	}
	r.methods[name] = m
}

// SetDoc records a one-paragraph description of the named method.
func (r *Registry) SetDoc(name, doc string) {
	r.docs[name] = doc
}

// Doc returns the description of the named method, if any.
func (r *Registry) Doc(name string) string {
	return r.docs[name]
}

// Lookup returns the Method registered under path.
func (r *Registry) Lookup(path string) (Method, bool) {
	m, ok := r.methods[path]
	return m, ok
}

// Names returns the registered paths in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Namespace returns a view of r that registers methods under prefix.
func (r *Registry) Namespace(prefix string) *Namespace {
	if err := validName(prefix); err != nil {
		panic(err)
	}
	return &Namespace{r: r, prefix: prefix}
}

// Namespace registers methods under a common dotted prefix.
type Namespace struct {
	r      *Registry
	prefix string
}

// Register adds m as prefix.name.
func (n *Namespace) Register(name string, m Method) {
	n.r.Register(n.prefix+"."+name, m)
}

// SetDoc records the description of prefix.name.
func (n *Namespace) SetDoc(name, doc string) {
	n.r.SetDoc(n.prefix+"."+name, doc)
}

// Namespace returns a nested namespace prefix.sub.
func (n *Namespace) Namespace(sub string) *Namespace {
	return n.r.Namespace(n.prefix + "." + sub)
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("dispatch: empty method name")
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return fmt.Errorf("dispatch: method name %q has an empty segment", name)
		}
	}
	return nil
}
