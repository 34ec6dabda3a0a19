// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
)

//go:embed pages/*.html
var pageFS embed.FS

var pageTemplates = map[string]*template.Template{
	"verified": parsePage("verified"),
	"reset":    parsePage("reset"),
	"error":    parsePage("error"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(pageFS, "pages/layout.html", "pages/"+name+".html"))
}

type pageData struct {
	Title      string
	Message    string
	Token      string
	SubmitPath string
}

// renderPage writes the named page. Rendering happens before the status is
// written so a template failure can still become a plain 500.
func renderPage(w http.ResponseWriter, logger *slog.Logger, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplates[name].ExecuteTemplate(&buf, name+".html", data); err != nil {
		logger.Error("page render failed", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write(buf.Bytes())
}
