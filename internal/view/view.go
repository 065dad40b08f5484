// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/jeranaias/rigrun-chat/internal/render"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options configures page rendering.
type Options struct {
	// Title is the page title.
	Title string
	// Welcome is the assistant greeting shown on an empty conversation.
	Welcome string
	// MaxQuestionChars drives the input counter.
	MaxQuestionChars int
	// HighlightStyle is the chroma style for code block CSS ("" disables).
	HighlightStyle string
}

// DefaultOptions returns the default page options.
func DefaultOptions() Options {
	return Options{
		Title:            "rigrun chat",
		Welcome:          "Halo! 👋 Silakan ajukan pertanyaan Anda.",
		MaxQuestionChars: 1000,
		HighlightStyle:   "github",
	}
}

// Page is the data of the full chat page.
type Page struct {
	SessionID string
	Messages  []Message
}

// Views renders pages and fragments. It is safe for concurrent use.
type Views struct {
	tmpl      *template.Template
	renderer  *render.Renderer
	opts      Options
	highlight template.CSS
}

// New parses the embedded templates. Answers are rendered with renderer.
func New(renderer *render.Renderer, opts Options) (*Views, error) {
	if renderer == nil {
		renderer = render.New()
	}
	d := DefaultOptions()
	if opts.Title == "" {
		opts.Title = d.Title
	}
	if opts.Welcome == "" {
		opts.Welcome = d.Welcome
	}
	if opts.MaxQuestionChars <= 0 {
		opts.MaxQuestionChars = d.MaxQuestionChars
	}

	v := &Views{renderer: renderer, opts: opts}

	if opts.HighlightStyle != "" {
		var css strings.Builder
		if err := render.HighlightCSS(&css, opts.HighlightStyle); err != nil {
			return nil, fmt.Errorf("highlight css: %w", err)
		}
		v.highlight = template.CSS(css.String())
	}

	tmpl, err := template.New("view").Funcs(template.FuncMap{
		"markdown": v.markdown,
		"short":    shortID,
		"ratings":  func() []int { return []int{1, 2, 3, 4, 5} },
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	v.tmpl = tmpl
	return v, nil
}

// markdown renders answer text. The renderer output is escaped or
// sanitized, so it is trusted here.
func (v *Views) markdown(text string) template.HTML {
	return template.HTML(v.renderer.Render(text)) //nolint:gosec // renderer output is safe
}

// Markdown renders answer text to an HTML fragment.
func (v *Views) Markdown(text string) string {
	return v.renderer.Render(text)
}

// RenderMessage writes the fragment of one message.
func (v *Views) RenderMessage(w io.Writer, m Message) error {
	switch m.Kind {
	case KindUser, KindAI, KindError:
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return v.tmpl.ExecuteTemplate(w, "message", m)
}

// Fragment returns the HTML fragment of one message.
func (v *Views) Fragment(m Message) (string, error) {
	var buf bytes.Buffer
	if err := v.RenderMessage(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPage writes the full chat page.
func (v *Views) RenderPage(w io.Writer, p Page) error {
	return v.tmpl.ExecuteTemplate(w, "page", struct {
		Page
		Options
		HighlightCSS template.CSS
	}{p, v.opts, v.highlight})
}

// Static serves the embedded scripts and styles. Mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embedded directory always exists
	}
	return http.FileServer(http.FS(sub))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
