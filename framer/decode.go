// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framer

import (
	"io"
	"mime/multipart"
	"strings"

	"krpc.io/errors"
	"krpc.io/log"
	"krpc.io/protocol"
)

// File is an uploaded payload, substituted for its placeholder in the
// parameters of a decoded request.
type File struct {
	// Name is the placeholder the file was sent under.
	Name string

	// Filename is the filename the client declared.
	Filename string

	// ContentType is the content type the client declared.
	ContentType string

	// Size is the length of the payload in bytes.
	Size int64

	io.ReadCloser
}

// Form is a decoded framed body.
type Form struct {
	form   *multipart.Form
	opened []*File
}

// Decode reads a framed body delimited by boundary from r.
// Up to maxMemory bytes of payload are kept in memory; the rest is
// spilled to temporary files, which Close removes.
func Decode(r io.Reader, boundary string, maxMemory int64) (*Form, error) {
	const op errors.Op = "framer.Decode"
	form, err := multipart.NewReader(r, boundary).ReadForm(maxMemory)
	if err != nil {
		return nil, errors.E(op, errors.Syntax, err)
	}
	return &Form{form: form}, nil
}

// MaxJSONSize bounds the envelope read from a part sent with a filename.
const MaxJSONSize = 10 << 20

// JSON returns the request envelope carried by the form,
// from the part named "json" or, failing that, "JSON".
// The part may be a plain field or, as curl -F json=@file sends it,
// a file.
func (f *Form) JSON() (string, bool) {
	keys := []string{"json", "JSON"}
	for _, key := range keys {
		if v := f.form.Value[key]; len(v) > 0 {
			return v[0], true
		}
	}
	for _, key := range keys {
		if hs := f.form.File[key]; len(hs) > 0 {
			text, err := readPart(hs[0])
			if err != nil {
				log.Error.Printf("framer: reading %s part: %v", key, err)
				return "", false
			}
			return text, true
		}
	}
	return "", false
}

func readPart(h *multipart.FileHeader) (string, error) {
	if h.Size > MaxJSONSize {
		return "", errors.Errorf("%d bytes exceeds limit of %d", h.Size, MaxJSONSize)
	}
	rc, err := h.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, MaxJSONSize))
	return string(b), err
}

// Resolve replaces every file placeholder among params with a *File
// reading the part of the same name. Params may be a positional list,
// a map of named values or a single value; lists and maps are modified
// in place. A placeholder with no matching part yields a *protocol.Error
// with code protocol.CodeMissingFile.
func (f *Form) Resolve(params interface{}) (interface{}, error) {
	switch p := params.(type) {
	case []interface{}:
		for i, v := range p {
			file, err := f.resolve(v)
			if err != nil {
				return nil, err
			}
			if file != nil {
				p[i] = file
			}
		}
	case map[string]interface{}:
		for k, v := range p {
			file, err := f.resolve(v)
			if err != nil {
				return nil, err
			}
			if file != nil {
				p[k] = file
			}
		}
	default:
		file, err := f.resolve(p)
		if err != nil {
			return nil, err
		}
		if file != nil {
			return file, nil
		}
	}
	return params, nil
}

// resolve returns the file for v if v is a placeholder, or nil otherwise.
func (f *Form) resolve(v interface{}) (*File, error) {
	if !IsPlaceholder(v) {
		return nil, nil
	}
	name := v.(string)
	if hs := f.form.File[name]; len(hs) > 0 {
		h := hs[0]
		rc, err := h.Open()
		if err != nil {
			return nil, protocol.NewError(protocol.CodeMissingFile, name+": "+err.Error())
		}
		file := &File{
			Name:        name,
			Filename:    h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			ReadCloser:  rc,
		}
		f.opened = append(f.opened, file)
		return file, nil
	}
	// A part sent without a filename arrives as a plain value.
	if vs := f.form.Value[name]; len(vs) > 0 {
		file := &File{
			Name:        name,
			ContentType: DefaultContentType,
			Size:        int64(len(vs[0])),
			ReadCloser:  io.NopCloser(strings.NewReader(vs[0])),
		}
		f.opened = append(f.opened, file)
		return file, nil
	}
	return nil, protocol.NewError(protocol.CodeMissingFile, name)
}

// Close closes every file handed out by Resolve and removes
// temporary files.
func (f *Form) Close() error {
	for _, file := range f.opened {
		file.Close()
	}
	f.opened = nil
	return f.form.RemoveAll()
}
