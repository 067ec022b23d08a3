// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framer

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"krpc.io/protocol"
)

// countingWriter counts the bytes written through it.
type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// patterned yields size bytes of a repeating pattern and has no Len
// method, so NewPart has to stage it.
type patterned struct {
	size, off int64
}

func (p *patterned) Read(b []byte) (int, error) {
	if p.off >= p.size {
		return 0, io.EOF
	}
	n := int64(len(b))
	if rem := p.size - p.off; n > rem {
		n = rem
	}
	for i := int64(0); i < n; i++ {
		b[i] = byte((p.off + i) % 251)
	}
	p.off += n
	return int(n), nil
}

func patternBytes(size int64) []byte {
	b, _ := io.ReadAll(&patterned{size: size})
	return b
}

func tempFunc(t *testing.T) TempFunc {
	dir := t.TempDir()
	return func() (*os.File, error) {
		return os.CreateTemp(dir, "stage")
	}
}

func TestLenMatchesWritten(t *testing.T) {
	sizes := []int64{0, 1, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3<<20 + 17}
	for _, size := range sizes {
		body := &Body{JSON: []byte(`{"method":"files.size","params":["x"]}`)}
		for i := 0; i < 2; i++ {
			p, err := NewPart(NewPlaceholder(), &patterned{size: size}, tempFunc(t))
			if err != nil {
				t.Fatal(err)
			}
			body.Parts = append(body.Parts, p)
		}
		want := body.Len()
		var w countingWriter
		n, err := body.WriteTo(&w)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if n != want || w.n != want {
			t.Errorf("size %d: Len() = %d, WriteTo returned %d and wrote %d", size, want, n, w.n)
		}
		body.Close()
	}
}

func TestLenNoParts(t *testing.T) {
	body := &Body{JSON: []byte(`{}`)}
	var buf bytes.Buffer
	if _, err := body.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if int64(buf.Len()) != body.Len() {
		t.Errorf("Len() = %d, wrote %d", body.Len(), buf.Len())
	}
	want := "-------KrOnOsThEwIzArD\r\nContent-Disposition: form-data; name=\"json\"\r\n\r\n{}\r\n-------KrOnOsThEwIzArD--\r\n\r\n"
	if buf.String() != want {
		t.Errorf("body = %q, want %q", buf.String(), want)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	fileContent := patternBytes(2*ChunkSize + 5)
	if err := os.WriteFile(path, fileContent, 0600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	// The caller's offset must not matter.
	f.Read(make([]byte, 10))

	memContent := []byte("in memory")
	id1, id2 := NewPlaceholder(), NewPlaceholder()
	p1, err := NewPart(id1, f, tempFunc(t))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := NewPart(id2, bytes.NewReader(memContent), tempFunc(t))
	if err != nil {
		t.Fatal(err)
	}
	if p1.Filename != "notes.txt" || !strings.HasPrefix(p1.ContentType, "text/plain") {
		t.Errorf("file part declared %q as %q", p1.Filename, p1.ContentType)
	}
	if p2.Filename != defaultFilename || p2.ContentType != DefaultContentType {
		t.Errorf("memory part declared %q as %q", p2.Filename, p2.ContentType)
	}

	envelope, err := protocol.EncodeRequest("files.compare", []interface{}{id1, "plain", id2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	body := &Body{JSON: envelope, Parts: []Part{p1, p2}}
	var buf bytes.Buffer
	if _, err := body.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	// A small memory limit forces the file part to disk.
	form, err := Decode(&buf, Boundary, 1024)
	if err != nil {
		t.Fatal(err)
	}
	defer form.Close()
	text, ok := form.JSON()
	if !ok {
		t.Fatal("no json part")
	}
	req, err := protocol.DecodeRequest([]byte(text))
	if err != nil {
		t.Fatal(err)
	}
	params, err := form.Resolve(req.Params)
	if err != nil {
		t.Fatal(err)
	}
	list := params.([]interface{})
	for i, v := range list {
		if IsPlaceholder(v) {
			t.Errorf("param %d still holds placeholder %v", i, v)
		}
	}
	check := func(v interface{}, want []byte) {
		t.Helper()
		file, ok := v.(*File)
		if !ok {
			t.Fatalf("param is %T, want *File", v)
		}
		got, err := io.ReadAll(file)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("file %s: got %d bytes, want %d", file.Name, len(got), len(want))
		}
		if file.Size != int64(len(want)) {
			t.Errorf("file %s: Size = %d, want %d", file.Name, file.Size, len(want))
		}
	}
	check(list[0], fileContent)
	check(list[2], memContent)
	if list[1] != "plain" {
		t.Errorf("param 1 = %v, want plain", list[1])
	}
}

func TestFilenameInHeader(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"a\nb.txt", "a%0Ab.txt"},
		{"a\r\nb.txt", "a%0D%0Ab.txt"},
		{`say "hi".txt`, `say "hi".txt`},
	}
	for _, test := range tests {
		id := NewPlaceholder()
		p, err := NewPart(id, strings.NewReader("payload"), nil)
		if err != nil {
			t.Fatal(err)
		}
		p.Filename = test.filename
		envelope, _ := protocol.EncodeRequest("files.size", []interface{}{id}, nil)
		body := &Body{JSON: envelope, Parts: []Part{p}}
		var buf bytes.Buffer
		n, err := body.WriteTo(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if n != body.Len() {
			t.Errorf("%q: wrote %d bytes, Len = %d", test.filename, n, body.Len())
		}
		form, err := Decode(&buf, Boundary, 1<<20)
		if err != nil {
			t.Errorf("%q: Decode: %v", test.filename, err)
			continue
		}
		text, _ := form.JSON()
		req, _ := protocol.DecodeRequest([]byte(text))
		params, err := form.Resolve(req.Params)
		if err != nil {
			t.Errorf("%q: Resolve: %v", test.filename, err)
			form.Close()
			continue
		}
		file := params.([]interface{})[0].(*File)
		if file.Filename != test.want {
			t.Errorf("filename %q arrived as %q, want %q", test.filename, file.Filename, test.want)
		}
		if b, _ := io.ReadAll(file); string(b) != "payload" {
			t.Errorf("%q: got %q", test.filename, b)
		}
		form.Close()
	}
}

func TestJSONFilePart(t *testing.T) {
	const envelope = `{"method":"echo","params":["hi"]}`
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("json", "req.json")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, envelope)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	form, err := Decode(&buf, w.Boundary(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer form.Close()
	text, ok := form.JSON()
	if !ok || text != envelope {
		t.Errorf("JSON() = %q, %v; want %q", text, ok, envelope)
	}
}

func TestResolveNamed(t *testing.T) {
	id := NewPlaceholder()
	p, err := NewPart(id, strings.NewReader("abc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	envelope, _ := protocol.EncodeRequest("files.size", map[string]interface{}{"f": id}, nil)
	var buf bytes.Buffer
	if _, err := (&Body{JSON: envelope, Parts: []Part{p}}).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	form, err := Decode(&buf, Boundary, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer form.Close()
	text, _ := form.JSON()
	req, _ := protocol.DecodeRequest([]byte(text))
	params, err := form.Resolve(req.Params)
	if err != nil {
		t.Fatal(err)
	}
	file, ok := params.(map[string]interface{})["f"].(*File)
	if !ok {
		t.Fatalf("named param is %T", params.(map[string]interface{})["f"])
	}
	if b, _ := io.ReadAll(file); string(b) != "abc" {
		t.Errorf("got %q", b)
	}
}

func TestMissingPart(t *testing.T) {
	id := NewPlaceholder()
	envelope, _ := protocol.EncodeRequest("files.size", []interface{}{id}, nil)
	var buf bytes.Buffer
	if _, err := (&Body{JSON: envelope}).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	form, err := Decode(&buf, Boundary, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer form.Close()
	text, _ := form.JSON()
	req, _ := protocol.DecodeRequest([]byte(text))
	_, err = form.Resolve(req.Params)
	e := protocol.AsError(err)
	if e == nil || e.Code != protocol.CodeMissingFile || e.Info != id {
		t.Errorf("Resolve error = %v, want missing file %s", err, id)
	}
}

func TestSizeMismatch(t *testing.T) {
	p := Part{
		Name:        "__file__:short",
		Filename:    "short",
		ContentType: DefaultContentType,
		Size:        10,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("abc")), nil
		},
	}
	_, err := (&Body{JSON: []byte("{}"), Parts: []Part{p}}).WriteTo(io.Discard)
	if err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestStagedPartRemoved(t *testing.T) {
	dir := t.TempDir()
	temp := func() (*os.File, error) { return os.CreateTemp(dir, "stage") }
	p, err := NewPart(NewPlaceholder(), &patterned{size: 100}, temp)
	if err != nil {
		t.Fatal(err)
	}
	body := &Body{JSON: []byte("{}"), Parts: []Part{p}}
	if _, err := body.WriteTo(io.Discard); err != nil {
		t.Fatal(err)
	}
	body.Close()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d staged files left behind", len(entries))
	}
}

func TestPlaceholderUnique(t *testing.T) {
	const goroutines, each = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := NewPlaceholder()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate placeholder %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for id := range seen {
		if !IsPlaceholder(id) {
			t.Fatalf("%q is not a placeholder", id)
		}
	}
	if IsPlaceholder("__file_x") || IsPlaceholder(42) {
		t.Error("IsPlaceholder accepted a non-placeholder")
	}
}
