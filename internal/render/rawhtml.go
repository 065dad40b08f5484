// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	gmutil "github.com/yuin/goldmark/util"
)

// =============================================================================
// RAW HTML ESCAPING
// =============================================================================

// rawHTMLPriority places the escaper ahead of goldmark's default HTML
// renderer (priority 1000); lower values win.
const rawHTMLPriority = 100

// rawHTMLEscaper renders inline and block raw HTML as visible text. Without
// it goldmark replaces raw HTML with an "omitted" comment and the user's text
// is lost once the sanitizer drops the comment.
type rawHTMLEscaper struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *rawHTMLEscaper) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
}

func (r *rawHTMLEscaper) renderRawHTML(w gmutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*ast.RawHTML)
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		_, _ = w.Write(gmutil.EscapeHTML(seg.Value(source)))
	}
	return ast.WalkSkipChildren, nil
}

// renderHTMLBlock writes an HTML block as a paragraph. Lines are joined with
// <br> to match the hard line breaks of ordinary paragraphs.
func (r *rawHTMLEscaper) renderHTMLBlock(w gmutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.HTMLBlock)

	var lines [][]byte
	for i := 0; i < n.Lines().Len(); i++ {
		seg := n.Lines().At(i)
		lines = append(lines, seg.Value(source))
	}
	if n.HasClosure() {
		lines = append(lines, n.ClosureLine.Value(source))
	}

	_, _ = w.WriteString("<p>")
	first := true
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !first {
			_, _ = w.WriteString("<br>\n")
		}
		_, _ = w.Write(gmutil.EscapeHTML(line))
		first = false
	}
	_, _ = w.WriteString("</p>\n")
	return ast.WalkContinue, nil
}
