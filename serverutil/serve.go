// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package serverutil provides a helper for starting an HTTP server
// for an RPC handler.
package serverutil // import "krpc.io/serverutil"

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"golang.org/x/net/netutil"

	"krpc.io/errors"
	"krpc.io/log"
	"krpc.io/shutdown"
)

// Options configures ListenAndServe.
type Options struct {
	// Addr specifies the host and port on which the server should serve
	// HTTP requests. If empty, "localhost:8080" is used.
	Addr string

	// MaxConns bounds the number of simultaneously served connections.
	// Zero means no bound: each connection gets its own goroutine.
	MaxConns int

	// Gzip compresses responses for clients that accept it.
	Gzip bool

	// ShutdownTimeout bounds how long in-flight requests may take to
	// finish once shutdown begins. If zero, 10 seconds is used.
	ShutdownTimeout time.Duration
}

func (opt *Options) applyDefaults() {
	if opt.Addr == "" {
		opt.Addr = "localhost:8080"
	}
	if opt.ShutdownTimeout == 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}
}

// Wrap returns h with the middleware selected by opt applied.
func Wrap(h http.Handler, opt *Options) http.Handler {
	if opt != nil && opt.Gzip {
		h = gziphandler.GzipHandler(h)
	}
	return h
}

// Listen returns a listener on opt.Addr, bounded to opt.MaxConns
// simultaneous connections if that is positive.
func Listen(opt *Options) (net.Listener, error) {
	const op errors.Op = "serverutil.Listen"
	ln, err := net.Listen("tcp", opt.Addr)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if opt.MaxConns > 0 {
		ln = netutil.LimitListener(ln, opt.MaxConns)
	}
	return ln, nil
}

// ListenAndServe serves h by HTTP using the provided options.
//
// The given channel, if any, is closed when the TCP listener has succeeded.
// It may be used to signal that the server is ready to start serving requests.
//
// ListenAndServe registers a shutdown handler that stops accepting
// connections and waits for in-flight requests. It returns when the
// server has stopped, with nil after a clean shutdown.
func ListenAndServe(ready chan<- struct{}, h http.Handler, opt *Options) error {
	const op errors.Op = "serverutil.ListenAndServe"
	if opt == nil {
		opt = &Options{}
	}
	opt.applyDefaults()

	if !IsLoopback(opt.Addr) {
		log.Error.Printf("serverutil: WARNING: serving plain HTTP on non-loopback address %q", opt.Addr)
	}
	ln, err := Listen(opt)
	if err != nil {
		return errors.E(op, err)
	}
	log.Info.Printf("serverutil: serving HTTP on %q", ln.Addr())

	server := &http.Server{Handler: Wrap(h, opt)}
	stopped := make(chan struct{})
	shutdown.Handle(func() {
		ctx, cancel := context.WithTimeout(context.Background(), opt.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error.Printf("serverutil: shutdown: %v", err)
		}
		<-stopped
	})

	if ready != nil {
		close(ready)
	}
	err = server.Serve(ln)
	close(stopped)
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.E(op, errors.IO, err)
}
