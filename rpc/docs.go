// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/russross/blackfriday"

	"krpc.io/dispatch"
	"krpc.io/log"
)

var docTmpl = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Content}}
</body>
</html>
`))

type pageData struct {
	Title   string
	Content template.HTML
}

type docServer struct {
	reg *dispatch.Registry
}

// NewDocHandler returns an http.Handler that serves an HTML index of the
// methods registered in reg, with the documentation set by SetDoc.
func NewDocHandler(reg *dispatch.Registry) http.Handler {
	return &docServer{reg: reg}
}

func (s *docServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docTmpl.Execute(w, pageData{
		Title:   "Methods",
		Content: template.HTML(blackfriday.MarkdownCommon(methodIndex(s.reg))),
	}); err != nil {
		log.Error.Printf("rpc: executing doc template: %v", err)
	}
}

// methodIndex returns the Markdown text of the method index.
func methodIndex(reg *dispatch.Registry) []byte {
	var b bytes.Buffer
	b.WriteString("# Methods\n\n")
	names := reg.Names()
	if len(names) == 0 {
		b.WriteString("No methods are registered.\n")
	}
	for _, name := range names {
		fmt.Fprintf(&b, "## `%s`\n\n", name)
		if doc := reg.Doc(name); doc != "" {
			fmt.Fprintf(&b, "%s\n\n", doc)
		}
	}
	return b.Bytes()
}
