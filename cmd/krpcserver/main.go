// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command krpcserver serves a small set of demonstration methods over
// the RPC protocol.
//
// Usage:
//
//	krpcserver [-config file] [-addr host:port] [-prehook method] [-loglevel level]
//
// Flags override the values of the configuration file. The methods are
// echo, raise_ioerror, raise_managed, call_at_every_request, math.add,
// files.size and files.cat. If docs are enabled, an index of the methods
// is served at /doc.
package main // import "krpc.io/cmd/krpcserver"

import (
	"expvar"
	"net/http"
	"os"
	"runtime"
	"time"

	"krpc.io/config"
	"krpc.io/dispatch"
	"krpc.io/errors"
	"krpc.io/flags"
	"krpc.io/log"
	"krpc.io/metric"
	"krpc.io/rpc"
	"krpc.io/serverutil"
)

func main() {
	flags.Parse("config", "addr", "prehook", "loglevel")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Apply(); err != nil {
		log.Fatal(err)
	}
	if log.At("debug") {
		metric.RegisterSaver(metric.NewLogSaver())
	}
	if cfg.TempDir != "" {
		if err := setSpillDir(cfg.TempDir); err != nil {
			log.Fatal(err)
		}
	}

	requests := serverutil.NewRateCounter(60, time.Second)
	expvar.Publish("krpc.requests", requests)

	err = serverutil.ListenAndServe(nil, newHandler(cfg, requests), &serverutil.Options{
		Addr:     cfg.Addr,
		MaxConns: cfg.MaxConns,
		Gzip:     cfg.Gzip,
	})
	if err != nil {
		log.Fatal(err)
	}
	// The shutdown handler drains the server and exits the process.
	select {}
}

// loadConfig reads the configuration file, if any, and applies the
// command-line flags on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flags.Config != "" {
		var err error
		cfg, err = config.FromFile(flags.Config)
		if err != nil {
			return nil, err
		}
	}
	if flags.Addr != "" {
		cfg.Addr = flags.Addr
	}
	if flags.PreHook != "" {
		cfg.PreHook = flags.PreHook
	}
	if flags.LogLevel.IsSet() {
		cfg.LogLevel = flags.LogLevel.String()
	}
	return cfg, nil
}

// setSpillDir makes dir the directory where the parts of an upload
// that exceed maxmemory are written. The multipart reader has no option
// for it and always uses os.TempDir, so this sets the environment
// variable os.TempDir consults. It must be called before serving.
func setSpillDir(dir string) error {
	const op errors.Op = "krpcserver.setSpillDir"
	info, err := os.Stat(dir)
	if err != nil {
		return errors.E(op, errors.NotExist, err)
	}
	if !info.IsDir() {
		return errors.E(op, errors.Invalid, errors.Errorf("%s is not a directory", dir))
	}
	key := "TMPDIR"
	if runtime.GOOS == "windows" {
		key = "TMP"
	}
	if err := os.Setenv(key, dir); err != nil {
		return errors.E(op, err)
	}
	log.Info.Printf("krpcserver: spilling uploads to %s", dir)
	return nil
}

// newHandler returns the handler serving the demonstration methods,
// counting calls in requests, and, if enabled, their index.
func newHandler(cfg *config.Config, requests *serverutil.RateCounter) http.Handler {
	reg := newRegistry(cfg)
	mux := http.NewServeMux()
	server := rpc.NewServer(dispatch.New(reg, cfg.PreHook), rpc.ServerOptions{
		MaxMemory: cfg.MaxMemory,
	})
	mux.Handle("/", serverutil.CountRequests(server, requests))
	mux.Handle("/debug/vars", expvar.Handler())
	if cfg.Docs {
		mux.Handle("/doc", rpc.NewDocHandler(reg))
	}
	return mux
}
