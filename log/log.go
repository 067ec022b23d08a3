// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log exports leveled logging primitives that log to stderr.
package log // import "krpc.io/log"

// We call this log instead of logging for two reasons:
// 1) It's shorter to type;
// 2) it mimics Go's log package and can be used as a drop-in replacement for it.

import (
	"fmt"
	goLog "log"
	"os"
	"sync"
)

// Logger is the interface for logging messages.
type Logger interface {
	// Printf writes a formated message to the log.
	Printf(format string, v ...interface{})

	// Print writes a message to the log.
	Print(v ...interface{})

	// Println writes a line to the log.
	Println(v ...interface{})

	// Fatal writes a message to the log and aborts.
	Fatal(v ...interface{})

	// Fatalf writes a formated message to the log and aborts.
	Fatalf(format string, v ...interface{})
}

// level represents the level of logging.
type level int

// Different levels of logging.
const (
	debug level = iota
	info
	errors
	disabled
)

// Pre-allocated Loggers at each logging level.
var (
	Debug = newLogger(debug)
	Info  = newLogger(info)
	Error = newLogger(errors)
)

var state = struct {
	sync.Mutex
	level         level
	defaultLogger Logger
}{
	level:         info,
	defaultLogger: newDefaultLogger(),
}

func newDefaultLogger() Logger {
	return goLog.New(os.Stderr, "", goLog.Ldate|goLog.Ltime|goLog.LUTC|goLog.Lmicroseconds)
}

// current returns the current level and the logger to write to.
func current() (level, Logger) {
	state.Lock()
	defer state.Unlock()
	return state.level, state.defaultLogger
}

type logger struct {
	level level
}

var _ Logger = (*logger)(nil)

// Printf writes a formated message to the log.
func (l *logger) Printf(format string, v ...interface{}) {
	lvl, out := current()
	if l.level < lvl {
		return // Don't log at lower levels.
	}
	out.Printf(format, v...)
}

// Print writes a message to the log.
func (l *logger) Print(v ...interface{}) {
	lvl, out := current()
	if l.level < lvl {
		return // Don't log at lower levels.
	}
	out.Print(v...)
}

// Println writes a line to the log.
func (l *logger) Println(v ...interface{}) {
	lvl, out := current()
	if l.level < lvl {
		return // Don't log at lower levels.
	}
	out.Println(v...)
}

// Fatal writes a message to the log and aborts, regardless of the current log level.
func (l *logger) Fatal(v ...interface{}) {
	_, out := current()
	out.Fatal(v...)
}

// Fatalf writes a formated message to the log and aborts, regardless of the current log level.
func (l *logger) Fatalf(format string, v ...interface{}) {
	_, out := current()
	out.Fatalf(format, v...)
}

// String returns the name of the logger.
func (l *logger) String() string {
	return toString(l.level)
}

func toString(level level) string {
	switch level {
	case info:
		return "info"
	case debug:
		return "debug"
	case errors:
		return "error"
	case disabled:
		return "disabled"
	}
	return "unknown"
}

// Level returns the current logging level.
func Level() string {
	lvl, _ := current()
	return toString(lvl)
}

func toLevel(level string) (level, error) {
	switch level {
	case "info":
		return info, nil
	case "debug":
		return debug, nil
	case "error":
		return errors, nil
	case "disabled":
		return disabled, nil
	}
	return disabled, fmt.Errorf("invalid log level %q", level)
}

// SetLevel sets the current level of logging.
func SetLevel(level string) error {
	l, err := toLevel(level)
	if err != nil {
		return err
	}
	state.Lock()
	state.level = l
	state.Unlock()
	return nil
}

// At returns whether the level will be logged currently.
func At(level string) bool {
	l, err := toLevel(level)
	if err != nil {
		return false
	}
	lvl, _ := current()
	return lvl <= l
}

// SetOutput replaces the logger that all levels write to.
// A nil Logger restores the default, which writes to stderr.
func SetOutput(l Logger) {
	if l == nil {
		l = newDefaultLogger()
	}
	state.Lock()
	state.defaultLogger = l
	state.Unlock()
}

// Printf writes a formated message to the log.
func Printf(format string, v ...interface{}) {
	Info.Printf(format, v...)
}

// Print writes a message to the log.
func Print(v ...interface{}) {
	Info.Print(v...)
}

// Println writes a line to the log.
func Println(v ...interface{}) {
	Info.Println(v...)
}

// Fatal writes a message to the log and aborts.
func Fatal(v ...interface{}) {
	Info.Fatal(v...)
}

// Fatalf writes a formated message to the log and aborts.
func Fatalf(format string, v ...interface{}) {
	Info.Fatalf(format, v...)
}

// newLogger instantiates an implicit Logger at the given level.
func newLogger(level level) Logger {
	return &logger{
		level: level,
	}
}
