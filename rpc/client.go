// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"krpc.io/errors"
	"krpc.io/framer"
	"krpc.io/log"
	"krpc.io/protocol"
)

// Client calls the methods of a remote server.
// It is safe for concurrent use; each call is independent.
type Client struct {
	url    string
	client *http.Client
	temp   framer.TempFunc

	mu         sync.Mutex
	hookParams interface{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient makes the Client send requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTempDir makes the Client stage payloads in dir rather than in
// the operating system's temporary directory.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.temp = func() (*os.File, error) {
			return os.CreateTemp(dir, "krpctemp")
		}
	}
}

// NewClient returns a Client for the server at addr, which is either
// host:port or an http or https URL.
func NewClient(addr string, opts ...Option) (*Client, error) {
	const op errors.Op = "rpc.NewClient"
	if addr == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("empty server address"))
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("no host in %q", addr))
	}
	if u.Path == "" {
		u.Path = "/"
	}
	c := &Client{
		url:    u.String(),
		client: http.DefaultClient,
		temp:   framer.DefaultTemp,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetHookParams sets the value sent as the arguments of the server's
// pre-method hook on every subsequent call. Nil sends none.
func (c *Client) SetHookParams(v interface{}) {
	c.mu.Lock()
	c.hookParams = v
	c.mu.Unlock()
}

func (c *Client) hook() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hookParams
}

// Method returns a Call for the named top-level method.
func (c *Client) Method(name string) *Call {
	return &Call{client: c, path: []string{name}}
}

// Call names a remote method by its dotted path.
// A Call is immutable; Method returns a new one.
type Call struct {
	client *Client
	path   []string
}

// Method returns a Call for the member name of the receiver's path.
func (call *Call) Method(name string) *Call {
	path := make([]string, len(call.path), len(call.path)+1)
	copy(path, call.path)
	return &Call{client: call.client, path: append(path, name)}
}

// Name returns the dotted path of the method.
func (call *Call) Name() string {
	return strings.Join(call.path, ".")
}

// Invoke calls the method with positional arguments.
// See Client.Execute for the treatment of arguments and results.
func (call *Call) Invoke(ctx context.Context, args ...interface{}) (interface{}, error) {
	return call.client.Execute(ctx, call.Name(), args, nil)
}

// InvokeNamed calls the method with named arguments.
// See Client.Execute for the treatment of arguments and results.
func (call *Call) InvokeNamed(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return call.client.Execute(ctx, call.Name(), nil, args)
}

// Execute calls the named method with either positional or named
// arguments; supplying both is an error.
//
// An argument that is an io.Reader is sent as a binary part and arrives
// at the method as a stream. A *os.File is sent from the start of the
// file whatever its offset.
//
// The result is the decoded JSON value, or an io.ReadCloser if the
// method returned a stream; the caller must close it. A failure reported
// by the server, or of the round trip itself, is a *protocol.Error.
func (c *Client) Execute(ctx context.Context, method string, positional []interface{}, named map[string]interface{}) (interface{}, error) {
	const op errors.Op = "rpc.Execute"
	if len(positional) > 0 && len(named) > 0 {
		return nil, errors.E(op, errors.Method(method), errors.Invalid, errors.Str("cannot mix positional and named arguments"))
	}

	var parts []framer.Part
	closeParts := func() {
		b := framer.Body{Parts: parts}
		b.Close()
	}
	substitute := func(v interface{}) (interface{}, error) {
		r, ok := v.(io.Reader)
		if !ok {
			return v, nil
		}
		p, err := framer.NewPart(framer.NewPlaceholder(), r, c.temp)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
		return p.Name, nil
	}

	var params interface{}
	if len(named) > 0 {
		m := make(map[string]interface{}, len(named))
		for k, v := range named {
			sv, err := substitute(v)
			if err != nil {
				closeParts()
				return nil, errors.E(op, errors.Method(method), err)
			}
			m[k] = sv
		}
		params = m
	} else {
		l := make([]interface{}, len(positional))
		for i, v := range positional {
			sv, err := substitute(v)
			if err != nil {
				closeParts()
				return nil, errors.E(op, errors.Method(method), err)
			}
			l[i] = sv
		}
		params = l
	}

	env, err := protocol.EncodeRequest(method, params, c.hook())
	if err != nil {
		closeParts()
		return nil, err
	}
	log.Debug.Printf("%s: %s with %d files", op, method, len(parts))
	if len(parts) == 0 {
		return c.post(ctx, env)
	}
	return c.postMultipart(ctx, &framer.Body{JSON: env, Parts: parts})
}

// post sends env as an urlencoded form.
func (c *Client) post(ctx context.Context, env []byte) (interface{}, error) {
	form := url.Values{"json": {string(env)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form))
	if err != nil {
		return nil, protocol.NewError(protocol.CodeRequest, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return c.readResponse(resp)
}

// postMultipart sends body, which it closes. The body is produced by a
// separate goroutine as the transport consumes it.
func (c *Client) postMultipart(ctx context.Context, body *framer.Body) (interface{}, error) {
	defer body.Close()
	pr, pw := io.Pipe()
	var g errgroup.Group
	g.Go(func() error {
		_, err := body.WriteTo(pw)
		pw.CloseWithError(err)
		return err
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		pr.Close()
		g.Wait()
		return nil, protocol.NewError(protocol.CodeRequest, err.Error())
	}
	req.ContentLength = body.Len()
	req.Header.Set("Content-Type", framer.ContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		pr.Close()
		if werr := g.Wait(); werr != nil && !stderrors.Is(werr, io.ErrClosedPipe) {
			return nil, protocol.NewError(protocol.CodeRequest, werr.Error())
		}
		return nil, transportError(err)
	}
	res, err := c.readResponse(resp)
	pr.Close()
	g.Wait()
	return res, err
}

// readResponse decodes resp and closes its body. A stream is staged
// in a temporary file first, so the connection is released before the
// caller reads it.
func (c *Client) readResponse(resp *http.Response) (interface{}, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, protocol.NewError(protocol.CodeRequest, fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(b))))
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == streamContentType {
		rc, err := c.stage(resp.Body)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeRequest, err.Error())
		}
		return rc, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeRequest, err.Error())
	}
	return protocol.DecodeResponse(data)
}

// stage copies r to a new temporary file and returns it rewound.
func (c *Client) stage(r io.Reader) (io.ReadCloser, error) {
	const op errors.Op = "rpc.stage"
	f, err := c.temp()
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	t := &tempFile{File: f}
	if _, err := io.CopyBuffer(f, struct{ io.Reader }{r}, make([]byte, framer.ChunkSize)); err != nil {
		t.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	return t, nil
}

// tempFile is a staged stream result. Close removes the file.
type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rerr := os.Remove(t.File.Name()); err == nil {
		err = rerr
	}
	return err
}

// transportError converts a failure to complete an HTTP round trip.
func transportError(err error) *protocol.Error {
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return protocol.NewError(protocol.CodeConnectionRefused, err.Error())
	}
	return protocol.NewError(protocol.CodeRequest, err.Error())
}
