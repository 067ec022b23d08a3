// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the YAML configuration of an RPC server.
package config // import "krpc.io/config"

import (
	"fmt"
	"io"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v2"

	"krpc.io/errors"
	"krpc.io/log"
	"krpc.io/rpc"
)

// Config holds the settings of an RPC server.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string

	// PreHook names the method to invoke before every call.
	// Empty means no hook.
	PreHook string

	// LogLevel is one of debug, info, error or disabled.
	LogLevel string

	// MaxConns bounds simultaneous connections; zero means unbounded.
	MaxConns int

	// MaxMemory is the number of bytes of uploaded payload kept in
	// memory per request before spilling to temporary files.
	MaxMemory int64

	// Gzip enables compression of responses.
	Gzip bool

	// Docs enables the method index page.
	Docs bool

	// TempDir is where uploaded and staged payloads are spilled.
	// Empty means the operating system's default.
	TempDir string
}

// Keys of the configuration file.
const (
	addr      = "addr"
	prehook   = "prehook"
	loglevel  = "loglevel"
	maxconns  = "maxconns"
	maxmemory = "maxmemory"
	gzip      = "gzip"
	docs      = "docs"
	tempdir   = "tempdir"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := fromVals(defaults())
	if err != nil {
		panic(err) // The defaults are well formed.
	}
	return cfg
}

func defaults() map[string]string {
	return map[string]string{
		addr:      "localhost:8080",
		prehook:   "",
		loglevel:  "info",
		maxconns:  "0",
		maxmemory: strconv.Itoa(rpc.DefaultMaxMemory),
		gzip:      "false",
		docs:      "true",
		tempdir:   "",
	}
}

// FromFile reads the configuration in the named YAML file.
func FromFile(name string) (*Config, error) {
	const op errors.Op = "config.FromFile"
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.E(op, errors.NotExist, err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// Parse reads YAML from r and returns the configuration it describes.
// Keys missing from the YAML take their default values; unknown keys
// are an error.
func Parse(r io.Reader) (*Config, error) {
	const op errors.Op = "config.Parse"
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	vals := defaults()
	if err := valsFromYAML(vals, data); err != nil {
		return nil, errors.E(op, err)
	}
	cfg, err := fromVals(vals)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

func fromVals(vals map[string]string) (*Config, error) {
	cfg := &Config{
		Addr:     vals[addr],
		PreHook:  vals[prehook],
		LogLevel: vals[loglevel],
		TempDir:  vals[tempdir],
	}
	var err error
	if cfg.MaxConns, err = strconv.Atoi(vals[maxconns]); err != nil || cfg.MaxConns < 0 {
		return nil, badValue(maxconns, vals[maxconns])
	}
	if cfg.MaxMemory, err = strconv.ParseInt(vals[maxmemory], 10, 64); err != nil || cfg.MaxMemory <= 0 {
		return nil, badValue(maxmemory, vals[maxmemory])
	}
	if cfg.Gzip, err = strconv.ParseBool(vals[gzip]); err != nil {
		return nil, badValue(gzip, vals[gzip])
	}
	if cfg.Docs, err = strconv.ParseBool(vals[docs]); err != nil {
		return nil, badValue(docs, vals[docs])
	}
	if !validLevel(cfg.LogLevel) {
		return nil, badValue(loglevel, cfg.LogLevel)
	}
	return cfg, nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "error", "disabled":
		return true
	}
	return false
}

func badValue(key, val string) error {
	return errors.E(errors.Invalid, errors.Errorf("bad value %q for key %q", val, key))
}

// valsFromYAML parses YAML from the given data and puts the values
// into the provided map. Unrecognized keys generate an error.
func valsFromYAML(vals map[string]string, data []byte) error {
	newVals := map[string]interface{}{}
	if err := yaml.Unmarshal(data, newVals); err != nil {
		return errors.E(errors.Syntax, errors.Errorf("parsing YAML file: %v", err))
	}
	for k, v := range newVals {
		if _, ok := vals[k]; !ok {
			return errors.E(errors.Invalid, errors.Errorf("unrecognized key %q", k))
		}
		s, err := asString(v)
		if err != nil {
			return errors.E(errors.Invalid, errors.Errorf("key %q: %v", k, err))
		}
		vals[k] = s
	}
	return nil
}

// asString tries to convert a value back into its original string. This will not
// always be possible but should be for all our expected use cases.
func asString(v interface{}) (string, error) {
	switch vc := v.(type) {
	case nil:
		return "", nil
	case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
		return fmt.Sprintf("%v", vc), nil
	case string:
		return vc, nil
	}
	return "", errors.E(errors.Invalid, errors.Errorf("unrecognized value %T", v))
}

// TempFunc returns a function creating temporary files in cfg.TempDir.
func (cfg *Config) TempFunc() func() (*os.File, error) {
	dir := cfg.TempDir
	return func() (*os.File, error) {
		return os.CreateTemp(dir, "krpctemp")
	}
}

// Apply sets the process-wide state the configuration controls.
func (cfg *Config) Apply() error {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return errors.E(errors.Op("config.Apply"), errors.Invalid, err)
	}
	return nil
}
