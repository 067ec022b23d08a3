// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framer

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"krpc.io/errors"
	"krpc.io/log"
)

const (
	// Boundary separates the parts of a framed body.
	Boundary = "-----KrOnOsThEwIzArD"

	// ChunkSize is the size of the pieces in which payloads are copied.
	ChunkSize = 8192

	// DefaultContentType is declared for parts whose type
	// cannot be inferred from their filename.
	DefaultContentType = "application/octet-stream"

	// defaultFilename names parts whose reader has no name.
	defaultFilename = "blob"

	crlf = "\r\n"
)

// ContentType returns the value of the Content-Type header for a framed body.
func ContentType() string {
	return "multipart/form-data; boundary=" + Boundary
}

// TempFunc creates an empty temporary file. The caller removes it.
type TempFunc func() (*os.File, error)

// DefaultTemp creates temporary files in the operating system's
// temporary directory.
func DefaultTemp() (*os.File, error) {
	return os.CreateTemp("", "krpctemp")
}

// Part is a binary payload of a framed body.
type Part struct {
	// Name is the file placeholder that stands for the part.
	Name string

	// Filename is the base name declared for the part.
	Filename string

	// ContentType is the declared content type.
	ContentType string

	// Size is the exact number of bytes Open yields.
	Size int64

	// Open returns the payload. It is called once, when the body is written.
	Open func() (io.ReadCloser, error)

	cleanup func()
}

// lenReader is implemented by readers that know how many bytes remain,
// such as *bytes.Reader, *strings.Reader and *bytes.Buffer.
type lenReader interface {
	io.Reader
	Len() int
}

type namer interface {
	Name() string
}

// NewPart returns a Part named name whose payload is read from r.
//
// A regular *os.File is re-opened by name, so the payload is its whole
// content regardless of the caller's read offset, and the caller's handle
// is left alone. A reader that reports its remaining length is used
// directly. Any other reader is first copied to a file made by temp, which
// is removed when the Body holding the part is closed.
func NewPart(name string, r io.Reader, temp TempFunc) (Part, error) {
	const op errors.Op = "framer.NewPart"
	p := Part{
		Name:     name,
		Filename: defaultFilename,
	}
	if n, ok := r.(namer); ok && n.Name() != "" {
		p.Filename = filepath.Base(n.Name())
	}
	p.ContentType = contentType(p.Filename)

	switch r := r.(type) {
	case *os.File:
		info, err := r.Stat()
		if err != nil {
			return Part{}, errors.E(op, errors.IO, err)
		}
		if info.Mode().IsRegular() {
			path := r.Name()
			p.Size = info.Size()
			p.Open = func() (io.ReadCloser, error) {
				return os.Open(path)
			}
			return p, nil
		}
	case lenReader:
		p.Size = int64(r.Len())
		p.Open = func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		}
		return p, nil
	}
	return stage(op, p, r, temp)
}

// stage copies r into a temporary file to learn its size.
func stage(op errors.Op, p Part, r io.Reader, temp TempFunc) (Part, error) {
	if temp == nil {
		temp = DefaultTemp
	}
	f, err := temp()
	if err != nil {
		return Part{}, errors.E(op, errors.IO, err)
	}
	path := f.Name()
	n, err := copyChunks(f, r, make([]byte, ChunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Part{}, errors.E(op, errors.IO, err)
	}
	log.Debug.Printf("framer: staged %d bytes of %s in %s", n, p.Name, path)
	p.Size = n
	p.Open = func() (io.ReadCloser, error) {
		return os.Open(path)
	}
	p.cleanup = func() {
		os.Remove(path)
	}
	return p, nil
}

func contentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return DefaultContentType
}

// headerEscaper makes a value safe inside a quoted header parameter.
// Line breaks are percent-encoded, as browsers do, so a filename cannot
// end the header line.
var headerEscaper = strings.NewReplacer(
	"\\", "\\\\",
	`"`, "\\\"",
	"\r", "%0D",
	"\n", "%0A",
)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

// Body is a framed request body: the JSON envelope followed by Parts,
// in order.
// A Body may be written only once, as each part is read as it is written.
type Body struct {
	JSON  []byte
	Parts []Part
}

// sink receives the segments of a body in order.
type sink interface {
	text(s string) error
	payload(p *Part) error
}

// walk traverses the body, feeding each segment to s. It is the single
// definition of the framing, shared by Len and WriteTo.
func (b *Body) walk(s sink) error {
	head := "--" + Boundary + crlf +
		`Content-Disposition: form-data; name="json"` + crlf + crlf
	if err := s.text(head); err != nil {
		return err
	}
	if err := s.text(string(b.JSON) + crlf); err != nil {
		return err
	}
	for i := range b.Parts {
		p := &b.Parts[i]
		head := "--" + Boundary + crlf +
			`Content-Disposition: form-data; name="` + escapeHeader(p.Name) +
			`"; filename="` + escapeHeader(p.Filename) + `"` + crlf +
			"Content-Type: " + p.ContentType + crlf + crlf
		if err := s.text(head); err != nil {
			return err
		}
		if err := s.payload(p); err != nil {
			return err
		}
		if err := s.text(crlf); err != nil {
			return err
		}
	}
	return s.text("--" + Boundary + "--" + crlf + crlf)
}

// lengthSink counts bytes without reading any payload.
type lengthSink struct {
	n int64
}

func (s *lengthSink) text(str string) error {
	s.n += int64(len(str))
	return nil
}

func (s *lengthSink) payload(p *Part) error {
	s.n += p.Size
	return nil
}

// Len returns the exact number of bytes WriteTo writes.
func (b *Body) Len() int64 {
	var s lengthSink
	b.walk(&s)
	return s.n
}

// writeSink writes segments to w, copying payloads in chunks.
type writeSink struct {
	w   io.Writer
	buf []byte
	n   int64
}

func (s *writeSink) text(str string) error {
	n, err := io.WriteString(s.w, str)
	s.n += int64(n)
	return err
}

func (s *writeSink) payload(p *Part) error {
	const op errors.Op = "framer.WriteTo"
	rc, err := p.Open()
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	defer rc.Close()
	n, err := copyChunks(s.w, io.LimitReader(rc, p.Size), s.buf)
	s.n += n
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	if n != p.Size {
		return errors.E(op, errors.IO, errors.Errorf("part %s: read %d bytes, declared %d", p.Name, n, p.Size))
	}
	// The payload must not have grown since it was measured.
	var extra [1]byte
	if m, _ := rc.Read(extra[:]); m > 0 {
		return errors.E(op, errors.IO, errors.Errorf("part %s: longer than declared %d bytes", p.Name, p.Size))
	}
	return nil
}

// WriteTo writes the framed body to w. It implements io.WriterTo.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	s := &writeSink{w: w, buf: make([]byte, ChunkSize)}
	err := b.walk(s)
	return s.n, err
}

// Close releases any payload staged in temporary files.
func (b *Body) Close() error {
	for _, p := range b.Parts {
		if p.cleanup != nil {
			p.cleanup()
		}
	}
	return nil
}

// copyChunks copies src to dst through buf, one chunk at a time.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var n int64
	for {
		m, err := src.Read(buf)
		if m > 0 {
			w, werr := dst.Write(buf[:m])
			n += int64(w)
			if werr != nil {
				return n, werr
			}
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}
