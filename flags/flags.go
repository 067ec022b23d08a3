// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flags defines command-line flags to make them consistent between binaries.
// Not all flags make sense for all binaries.
package flags // import "krpc.io/flags"

import (
	"flag"
	"fmt"

	"krpc.io/log"
)

// We define the flags in two steps so clients don't have to write *flags.Flag.
// It also makes the documentation easier to read.

var (
	// Addr is the network address of the server, host:port.
	// Empty means the value from the configuration file.
	Addr = ""

	// Config names the YAML configuration file of a server.
	Config = ""

	// PreHook names the method called before every request.
	// Empty means the value from the configuration file.
	PreHook = ""

	// Hook is the JSON value sent as the pre-method hook parameters.
	Hook = ""

	// LogLevel sets the level of logging.
	LogLevel logFlag
)

type logFlag struct {
	set   bool
	level string
}

// String implements flag.Value.
func (l *logFlag) String() string {
	if l.level == "" {
		return log.Level()
	}
	return l.level
}

// Set implements flag.Value.
func (l *logFlag) Set(level string) error {
	if err := log.SetLevel(level); err != nil {
		return fmt.Errorf("invalid level %q", level)
	}
	l.level = level
	l.set = true
	return nil
}

// IsSet reports whether the log level was given on the command line.
func (l *logFlag) IsSet() bool { return l.set }

var all = [...]string{
	"addr",
	"config",
	"prehook",
	"hook",
	"loglevel",
}

// Register defines the named flags on the default flag set.
// If no flags are named, it defines the full set.
// Register panics if a flag name is not recognized.
func Register(names ...string) {
	register(flag.CommandLine, names...)
}

func register(fs *flag.FlagSet, names ...string) {
	if len(names) == 0 {
		names = all[:]
	}
	for _, name := range names {
		switch name {
		case "addr":
			fs.StringVar(&Addr, "addr", Addr, "network `address` of the server, host:port")
		case "config":
			fs.StringVar(&Config, "config", Config, "YAML configuration `file`")
		case "prehook":
			fs.StringVar(&PreHook, "prehook", PreHook, "`method` to call before every request")
		case "hook":
			fs.StringVar(&Hook, "hook", Hook, "JSON `value` passed to the server's pre-method hook")
		case "loglevel":
			fs.Var(&LogLevel, "loglevel", "`level` of logging: debug, info, error or disabled")
		default:
			panic("flags.Register: unrecognized flag " + name)
		}
	}
}

// Parse registers the named flags, as Register does, and parses
// the command line.
func Parse(names ...string) {
	Register(names...)
	flag.Parse()
}
