// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"fmt"
	"io"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	gmutil "github.com/yuin/goldmark/util"
)

// =============================================================================
// ENGINE INTERFACES
// =============================================================================

// Engine renders normalized markdown to HTML. Implementations may fail; the
// Renderer treats any error as a signal to use the fallback formatter.
type Engine interface {
	Render(source string) (string, error)
}

// Sanitizer strips executable content (script elements, event handler
// attributes, javascript: URIs) from engine output. It must not fail.
type Sanitizer interface {
	Sanitize(html string) string
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(source string) (string, error)

// Render calls f(source).
func (f EngineFunc) Render(source string) (string, error) {
	return f(source)
}

// =============================================================================
// GOLDMARK ENGINE
// =============================================================================

// DefaultHighlightStyle is the chroma style used for fenced code blocks.
const DefaultHighlightStyle = "github"

// EngineConfig configures the goldmark engine.
type EngineConfig struct {
	// Highlight enables chroma syntax highlighting for fenced code blocks.
	// Highlighted blocks use CSS classes; see HighlightCSS.
	Highlight bool

	// HighlightStyle is the chroma style name (default: "github").
	HighlightStyle string
}

// DefaultEngineConfig returns the engine configuration used by the server.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Highlight:      true,
		HighlightStyle: DefaultHighlightStyle,
	}
}

// GoldmarkEngine renders CommonMark with tables, strikethrough, autolinks,
// hard line breaks and typographic punctuation. Raw HTML in the source is
// escaped, never passed through.
//
// A GoldmarkEngine is immutable after construction and safe for concurrent use.
type GoldmarkEngine struct {
	md goldmark.Markdown
}

// NewGoldmarkEngine builds a goldmark engine from cfg.
func NewGoldmarkEngine(cfg EngineConfig) *GoldmarkEngine {
	if cfg.HighlightStyle == "" {
		cfg.HighlightStyle = DefaultHighlightStyle
	}

	extensions := []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.Linkify,
		// Double quotes stay straight; dashes, ellipses and apostrophes
		// still get their typographic forms.
		extension.NewTypographer(
			extension.WithTypographicSubstitutions(map[extension.TypographicPunctuation][]byte{
				extension.LeftDoubleQuote:  []byte("&quot;"),
				extension.RightDoubleQuote: []byte("&quot;"),
			}),
		),
	}

	if cfg.Highlight {
		extensions = append(extensions, highlighting.NewHighlighting(
			highlighting.WithStyle(cfg.HighlightStyle),
			highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
		))
	}

	// Raw HTML in the source is escaped and shown as text.
	md := goldmark.New(
		goldmark.WithExtensions(extensions...),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			renderer.WithNodeRenderers(gmutil.Prioritized(&rawHTMLEscaper{}, rawHTMLPriority)),
		),
	)

	return &GoldmarkEngine{md: md}
}

// Render converts source to HTML.
func (e *GoldmarkEngine) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("goldmark convert: %w", err)
	}
	return buf.String(), nil
}

// HighlightCSS writes the chroma stylesheet for the named style. The chat
// page embeds it so class based highlighting has colors.
func HighlightCSS(w io.Writer, style string) error {
	s := styles.Get(style)
	if s == nil {
		s = styles.Fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	return formatter.WriteCSS(w, s)
}
