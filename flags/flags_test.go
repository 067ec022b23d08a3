// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flags

import (
	"flag"
	"io"
	"testing"

	"krpc.io/log"
)

func TestLogLevel(t *testing.T) {
	defer log.SetLevel(log.Level())
	var l logFlag
	if l.IsSet() {
		t.Fatal("flag set before Set")
	}
	if err := l.Set("debug"); err != nil {
		t.Fatal(err)
	}
	if !l.IsSet() || l.String() != "debug" || log.Level() != "debug" {
		t.Errorf("after Set: set=%v value=%q level=%q", l.IsSet(), l.String(), log.Level())
	}
	if err := l.Set("chatty"); err == nil {
		t.Error("expected error for invalid level")
	}
	if log.Level() != "debug" {
		t.Errorf("invalid Set changed level to %q", log.Level())
	}
}

func TestRegister(t *testing.T) {
	defer func() { Addr, PreHook = "", "" }()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	register(fs, "addr", "prehook")
	if err := fs.Parse([]string{"-addr", ":9999", "-prehook", "audit"}); err != nil {
		t.Fatal(err)
	}
	if Addr != ":9999" || PreHook != "audit" {
		t.Errorf("Addr=%q PreHook=%q", Addr, PreHook)
	}
	if fs.Lookup("config") != nil {
		t.Error("config flag registered but not requested")
	}
}

func TestRegisterUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("no panic for unknown flag")
		}
	}()
	register(flag.NewFlagSet("test", flag.ContinueOnError), "bogus")
}
