// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command krpc calls a method of an RPC server and prints its result.
//
// Usage:
//
//	krpc [-addr host:port] [-hook json] [-loglevel level] method [arg ...]
//
// Each argument is a JSON value; an argument that is not valid JSON is
// sent as a string. An argument of the form @path sends the named file.
// A JSON result is printed indented; a binary result is copied to the
// standard output as is.
package main // import "krpc.io/cmd/krpc"

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"krpc.io/errors"
	"krpc.io/flags"
	"krpc.io/rpc"
)

const defaultAddr = "localhost:8080"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: krpc [flags] method [arg ...]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flags.Parse("addr", "hook", "loglevel")
	if flag.NArg() < 1 {
		usage()
	}

	addr := flags.Addr
	if addr == "" {
		addr = defaultAddr
	}
	c, err := rpc.NewClient(addr)
	if err != nil {
		exitf("%v", err)
	}
	if flags.Hook != "" {
		var hook interface{}
		if err := json.Unmarshal([]byte(flags.Hook), &hook); err != nil {
			exitf("bad -hook value: %v", err)
		}
		c.SetHookParams(hook)
	}
	if err := run(context.Background(), c, flag.Args(), os.Stdout); err != nil {
		exitf("%v", err)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "krpc: "+format+"\n", args...)
	os.Exit(1)
}

// run invokes the method named by args[0] with the remaining arguments
// and writes the result to w.
func run(ctx context.Context, c *rpc.Client, args []string, w io.Writer) error {
	const op errors.Op = "krpc.run"
	var params []interface{}
	for _, arg := range args[1:] {
		v, closer, err := parseArg(arg)
		if err != nil {
			return errors.E(op, err)
		}
		if closer != nil {
			defer closer.Close()
		}
		params = append(params, v)
	}

	res, err := c.Method(args[0]).Invoke(ctx, params...)
	if err != nil {
		return err
	}
	if rc, ok := res.(io.ReadCloser); ok {
		defer rc.Close()
		if _, err := io.Copy(w, rc); err != nil {
			return errors.E(op, errors.IO, err)
		}
		return nil
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.E(op, err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// parseArg returns the value of a command-line argument. For a file
// argument it also returns the open file.
func parseArg(arg string) (interface{}, io.Closer, error) {
	if strings.HasPrefix(arg, "@") {
		f, err := os.Open(arg[1:])
		if err != nil {
			return nil, nil, errors.E(errors.IO, err)
		}
		return f, f, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg, nil, nil
	}
	return v, nil, nil
}
