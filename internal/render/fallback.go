// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strings"
)

// =============================================================================
// LIST STATE MACHINE
// =============================================================================

// ListState records which list container, if any, is open while the fallback
// formatter scans lines.
type ListState int

const (
	// ListNone means no list is open.
	ListNone ListState = iota
	// ListOrdered means an <ol> is open.
	ListOrdered
	// ListUnordered means a <ul> is open.
	ListUnordered
)

// String returns the state name.
func (s ListState) String() string {
	switch s {
	case ListOrdered:
		return "ordered"
	case ListUnordered:
		return "unordered"
	default:
		return "none"
	}
}

func (s ListState) openTag() string {
	switch s {
	case ListOrdered:
		return "<ol>"
	case ListUnordered:
		return "<ul>"
	}
	return ""
}

func (s ListState) closeTag() string {
	switch s {
	case ListOrdered:
		return "</ol>"
	case ListUnordered:
		return "</ul>"
	}
	return ""
}

// =============================================================================
// FALLBACK FORMATTER
// =============================================================================

var (
	fallbackNumberedRe = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)
	fallbackBulletRe   = regexp.MustCompile(`^[•\-\*]\s+(.+)$`)

	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
)

// Checked deepest first so "### " is never read as "# ".
var headingPasses = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`^### (.+)$`), "<h3>$1</h3>"},
	{regexp.MustCompile(`^## (.+)$`), "<h2>$1</h2>"},
	{regexp.MustCompile(`^# (.+)$`), "<h1>$1</h1>"},
}

var headingTagRe = regexp.MustCompile(`^<h[1-6]>`)

// lineBreak is emitted for every blank input line.
const lineBreak = "<br>"

// formatter folds lines into HTML fragments. state is the only thing carried
// from one line to the next.
type formatter struct {
	state ListState
	out   []string
}

// transition moves the machine into the target list state, closing and
// opening containers as needed.
func (f *formatter) transition(to ListState) {
	if f.state == to {
		return
	}
	if f.state != ListNone {
		f.out = append(f.out, f.state.closeTag())
	}
	if to != ListNone {
		f.out = append(f.out, to.openTag())
	}
	f.state = to
}

func (f *formatter) line(line string) {
	if line == "" {
		f.transition(ListNone)
		f.out = append(f.out, lineBreak)
		return
	}

	if m := fallbackNumberedRe.FindStringSubmatch(line); m != nil {
		// The digits are never validated: the browser numbers the list.
		f.transition(ListOrdered)
		f.out = append(f.out, "<li>"+Escape(m[2])+"</li>")
		return
	}

	if m := fallbackBulletRe.FindStringSubmatch(line); m != nil {
		f.transition(ListUnordered)
		f.out = append(f.out, "<li>"+Escape(m[1])+"</li>")
		return
	}

	f.transition(ListNone)
	f.out = append(f.out, formatInline(line))
}

// formatInline renders a single non-list line. Pass order is fixed:
// escape, bold, italic, then heading detection. The heading pass wraps the
// already emphasized text, so "# **x**" keeps its <strong>.
func formatInline(line string) string {
	s := Escape(line)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")

	for _, h := range headingPasses {
		if h.re.MatchString(s) {
			s = h.re.ReplaceAllString(s, h.repl)
			break
		}
	}

	if headingTagRe.MatchString(s) {
		return s
	}
	return "<p>" + s + "</p>"
}

// FormatManually converts normalized text to HTML without a markdown engine.
// It handles numbered and bullet lists, # headings, **bold**, *italic* and
// paragraphs. Every opened list is closed, including at end of input.
//
// FormatManually is total: if formatting panics the text is returned as
// escaped plain paragraphs.
func FormatManually(text string) string {
	out, _ := formatManually(text)
	return out
}

// formatManually reports false when it had to fall back to plain paragraphs.
func formatManually(text string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = plainParagraphs(text), false
		}
	}()

	f := &formatter{state: ListNone}
	for _, raw := range strings.Split(text, "\n") {
		f.line(strings.TrimSpace(raw))
	}
	f.transition(ListNone)

	return strings.Join(f.out, "\n"), true
}

// plainParagraphs is the last-known-safe rendering: one escaped <p> per
// non-blank line.
func plainParagraphs(text string) string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paragraphs = append(paragraphs, "<p>"+Escape(line)+"</p>")
	}
	return strings.Join(paragraphs, "\n")
}
