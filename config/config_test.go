// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"krpc.io/errors"
	"krpc.io/rpc"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Addr != "localhost:8080" || cfg.PreHook != "" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.MaxMemory != rpc.DefaultMaxMemory || !cfg.Docs || cfg.Gzip || cfg.MaxConns != 0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestParse(t *testing.T) {
	const text = `
addr: "localhost:9090"
prehook: call_at_every_request
loglevel: debug
maxconns: 16
maxmemory: 1048576
gzip: true
docs: false
`
	cfg, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Addr:      "localhost:9090",
		PreHook:   "call_at_every_request",
		LogLevel:  "debug",
		MaxConns:  16,
		MaxMemory: 1 << 20,
		Gzip:      true,
		Docs:      false,
	}
	if *cfg != want {
		t.Errorf("got %+v, want %+v", *cfg, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		kind errors.Kind
	}{
		{"bogus: 1\n", errors.Invalid},
		{"maxconns: lots\n", errors.Invalid},
		{"maxconns: -1\n", errors.Invalid},
		{"maxmemory: 0\n", errors.Invalid},
		{"gzip: perhaps\n", errors.Invalid},
		{"loglevel: loud\n", errors.Invalid},
		{"addr: [1, 2\n", errors.Syntax},
		{"addr: [1, 2]\n", errors.Invalid},
		{"prehook: {name: audit}\n", errors.Invalid},
	}
	for _, test := range tests {
		_, err := Parse(strings.NewReader(test.text))
		if err == nil {
			t.Errorf("Parse(%q) succeeded", test.text)
			continue
		}
		if !errors.Is(test.kind, err) {
			t.Errorf("Parse(%q) = %v, want kind %v", test.text, err, test.kind)
		}
	}
}

func TestFromFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(name, []byte("prehook: audit\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PreHook != "audit" || cfg.Addr != "localhost:8080" {
		t.Errorf("got %+v", cfg)
	}
	if _, err := FromFile(name + ".missing"); !errors.Is(errors.NotExist, err) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestTempFunc(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.TempDir = dir
	f, err := cfg.TempFunc()()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if filepath.Dir(f.Name()) != dir {
		t.Errorf("temp file %s not in %s", f.Name(), dir)
	}
}
