// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages holds the parsed admin page templates.
type Pages struct {
	templates map[string]*template.Template
}

// LoadPages parses the embedded admin pages.
func LoadPages() (*Pages, error) {
	p := &Pages{templates: make(map[string]*template.Template)}
	for _, name := range []string{"login.html", "data.html"} {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		p.templates[name] = t
	}
	return p, nil
}

// render executes a page into a buffer first so a template error never
// leaves a half-written response.
func (p *Pages) render(w http.ResponseWriter, logger *slog.Logger, name string, data any) {
	t, ok := p.templates[name]
	if !ok {
		logAndInternalError(w, logger, "unknown template", "template", name)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		logAndInternalError(w, logger, "template render error", "template", name, "error", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
