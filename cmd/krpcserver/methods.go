// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"krpc.io/config"
	"krpc.io/dispatch"
	"krpc.io/errors"
	"krpc.io/log"
	"krpc.io/protocol"
)

// demo holds the state of the demonstration methods.
type demo struct {
	temp func() (*os.File, error)

	// requests counts invocations of the pre-method hook.
	requests int64
}

func newRegistry(cfg *config.Config) *dispatch.Registry {
	d := &demo{temp: cfg.TempFunc()}
	reg := dispatch.NewRegistry()

	reg.Register("echo", d.echo)
	reg.SetDoc("echo", "Returns its single argument unchanged.")
	reg.Register("raise_ioerror", d.raiseIOError)
	reg.SetDoc("raise_ioerror", "Always fails with an unmanaged I/O error.")
	reg.Register("raise_managed", d.raiseManaged)
	reg.SetDoc("raise_managed", "Always fails with managed error 42, `Answer`.")
	reg.Register("call_at_every_request", d.callAtEveryRequest)
	reg.SetDoc("call_at_every_request", "Pre-method hook: logs its arguments and counts requests.")

	m := reg.Namespace("math")
	m.Register("add", d.add)
	m.SetDoc("add", "Returns `a + b`, given positionally or by name.")

	files := reg.Namespace("files")
	files.Register("size", d.size)
	files.SetDoc("size", "Returns the total size in bytes of the uploaded files.")
	files.Register("cat", d.cat)
	files.SetDoc("cat", "Returns the concatenation of the uploaded files as a binary stream.")
	return reg
}

func (d *demo) echo(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	return p.Get(0)
}

func (d *demo) raiseIOError(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	return nil, errors.E(errors.Op("raise_ioerror"), errors.IO, "Ooops!")
}

func (d *demo) raiseManaged(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	return nil, protocol.Managed(42, "Answer", "")
}

func (d *demo) callAtEveryRequest(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	n := atomic.AddInt64(&d.requests, 1)
	log.Info.Printf("call_at_every_request: request %d: hook params %v %v", n, p.Positional, p.Named)
	return nil, nil
}

// key returns the key of an argument given by position or by name.
func key(p *dispatch.Params, i int, name string) interface{} {
	if p.IsNamed() {
		return name
	}
	return i
}

func (d *demo) add(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	a, err := p.Float(key(p, 0, "a"))
	if err != nil {
		return nil, err
	}
	b, err := p.Float(key(p, 1, "b"))
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

// readers returns the file arguments, positional ones in order and
// named ones sorted by name.
func (d *demo) readers(p *dispatch.Params) ([]io.Reader, error) {
	var keys []interface{}
	if p.IsNamed() {
		names := make([]string, 0, len(p.Named))
		for name := range p.Named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			keys = append(keys, name)
		}
	} else {
		for i := 0; i < p.Len(); i++ {
			keys = append(keys, i)
		}
	}
	rs := make([]io.Reader, 0, len(keys))
	for _, k := range keys {
		r, err := p.Reader(k)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

func (d *demo) size(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	rs, err := d.readers(p)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, r := range rs {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return nil, errors.E(errors.IO, err)
		}
		total += n
	}
	return total, nil
}

// cat stages the concatenation in a temporary file, which is removed
// once the server has sent it.
func (d *demo) cat(ctx context.Context, p *dispatch.Params) (interface{}, error) {
	const op errors.Op = "files.cat"
	rs, err := d.readers(p)
	if err != nil {
		return nil, err
	}
	f, err := d.temp()
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	out := &removeOnClose{f}
	if _, err := io.Copy(f, io.MultiReader(rs...)); err != nil {
		out.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	return out, nil
}

type removeOnClose struct {
	*os.File
}

func (r *removeOnClose) Close() error {
	err := r.File.Close()
	os.Remove(r.File.Name())
	return err
}
