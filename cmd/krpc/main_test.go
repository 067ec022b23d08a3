// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"krpc.io/dispatch"
	"krpc.io/protocol"
	"krpc.io/rpc"
)

func newTestClient(t *testing.T) *rpc.Client {
	t.Helper()
	reg := dispatch.NewRegistry()
	reg.Register("echo", func(ctx context.Context, p *dispatch.Params) (interface{}, error) {
		return p.Positional, nil
	})
	reg.Register("cat", func(ctx context.Context, p *dispatch.Params) (interface{}, error) {
		return p.Reader(0)
	})
	srv := httptest.NewServer(rpc.NewServer(dispatch.New(reg, ""), rpc.ServerOptions{}))
	t.Cleanup(srv.Close)
	c, err := rpc.NewClient(srv.URL, rpc.WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		arg  string
		want interface{}
	}{
		{`42`, float64(42)},
		{`"quoted"`, "quoted"},
		{`bare`, "bare"},
		{`true`, true},
		{`null`, nil},
	}
	for _, test := range tests {
		got, closer, err := parseArg(test.arg)
		if err != nil || closer != nil {
			t.Errorf("parseArg(%q): %v, %v", test.arg, closer, err)
			continue
		}
		if got != test.want {
			t.Errorf("parseArg(%q) = %#v, want %#v", test.arg, got, test.want)
		}
	}
	if _, _, err := parseArg("@" + filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("no error for missing file")
	}
}

func TestRunJSON(t *testing.T) {
	c := newTestClient(t)
	var out bytes.Buffer
	if err := run(context.Background(), c, []string{"echo", "1", "two"}, &out); err != nil {
		t.Fatal(err)
	}
	want := "[\n  1,\n  \"two\"\n]\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestRunFile(t *testing.T) {
	c := newTestClient(t)
	name := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(name, []byte("file contents"), 0600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), c, []string{"cat", "@" + name}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "file contents" {
		t.Errorf("got %q", out.String())
	}
}

func TestRunError(t *testing.T) {
	c := newTestClient(t)
	err := run(context.Background(), c, []string{"missing"}, io.Discard)
	if protocol.CodeOf(err) != protocol.CodeMethodNotFound {
		t.Fatalf("got %v", err)
	}
}
