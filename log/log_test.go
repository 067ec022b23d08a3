// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"testing"
)

func TestLogLevel(t *testing.T) {
	const (
		msg1 = "log line1"
		msg2 = "log line2"
		msg3 = "log line3"
	)
	ml := setMockLogger(fmt.Sprintf("%shello: %s", msg2, msg3), false)
	defer SetOutput(nil)

	level := "info"
	SetLevel(level)
	if Level() != level {
		t.Fatalf("Expected %q, got %q", level, Level())
	}
	Debug.Println(msg1)             // not logged
	Info.Print(msg2)                // logged
	Error.Printf("hello: %s", msg3) // logged

	ml.Verify(t)
}

func TestDisable(t *testing.T) {
	ml := setMockLogger("Starting server...", false)
	defer SetOutput(nil)
	defer SetLevel("info")

	SetLevel("debug")
	Debug.Printf("Starting server...")
	SetLevel("disabled")
	Error.Printf("Important stuff you'll miss!")
	ml.Verify(t)
}

func TestFatal(t *testing.T) {
	const msg = "will abort anyway"

	ml := setMockLogger(msg, true)
	defer SetOutput(nil)
	defer SetLevel("info")

	SetLevel("error")
	Info.Fatal(msg)

	ml.Verify(t)
}

func TestAt(t *testing.T) {
	SetLevel("info")

	if At("debug") {
		t.Errorf("Debug is expected to be disabled when level is info")
	}
	if !At("error") {
		t.Errorf("Error is expected to be enabled when level is info")
	}
	if At("verbose") {
		t.Errorf("Unknown levels are never enabled")
	}
}

func TestSetLevelInvalid(t *testing.T) {
	SetLevel("info")
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if Level() != "info" {
		t.Errorf("level changed to %q after invalid SetLevel", Level())
	}
}

func setMockLogger(expected string, fatalExpected bool) *mockLogger {
	ml := &mockLogger{
		expected:      expected,
		fatalExpected: fatalExpected,
	}
	SetOutput(ml)
	return ml
}

type mockLogger struct {
	fatal         bool
	logged        string
	expected      string
	fatalExpected bool
}

func (ml *mockLogger) Printf(format string, v ...interface{}) {
	ml.logged += fmt.Sprintf(format, v...)
}

func (ml *mockLogger) Print(v ...interface{}) {
	ml.logged += fmt.Sprint(v...)
}

func (ml *mockLogger) Println(v ...interface{}) {
	ml.logged += fmt.Sprintln(v...)
}

func (ml *mockLogger) Fatal(v ...interface{}) {
	ml.fatal = true
	ml.Print(v...)
}

func (ml *mockLogger) Fatalf(format string, v ...interface{}) {
	ml.fatal = true
	ml.Printf(format, v...)
}

func (ml *mockLogger) Verify(t *testing.T) {
	if ml.logged != ml.expected {
		t.Errorf("Expected %q, got %q", ml.expected, ml.logged)
	}
	if ml.fatal != ml.fatalExpected {
		t.Errorf("Expected fatal %v, got %v", ml.fatalExpected, ml.fatal)
	}
}
