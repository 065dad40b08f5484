// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strings"
)

// =============================================================================
// TEXT NORMALIZER
// =============================================================================

// hspace matches one horizontal whitespace rune: ASCII blanks plus the
// Unicode space separators (NBSP, thin space, ideographic space) and BOM.
const hspace = `[\t\v\f\r \p{Zs}\x{FEFF}]`

var (
	// Horizontal whitespace only, Unicode spaces included: a marker on its
	// own line must not swallow the line below it.
	numberedLineRe = regexp.MustCompile(`(?m)^(\d+)\.` + hspace + `+(.+)$`)
	bulletLineRe   = regexp.MustCompile(`(?m)^[•\-\*]` + hspace + `+(.+)$`)
	excessBreakRe  = regexp.MustCompile(`\n{3,}`)

	listItemStartRe = regexp.MustCompile(`^(\d+\.\s|[•\-\*]\s)`)
)

// Normalize canonicalizes raw answer text before either rendering path sees
// it. Steps run in this order:
//
//  1. "\r\n" and then any remaining "\r" become "\n".
//  2. Numbered lines ("3.   text") become "3. text".
//  3. Bullet lines ("•  text", "* text") become "- text".
//  4. Runs of three or more newlines collapse to a single blank line.
//  5. A blank line is inserted before every list item line that does not
//     already follow a blank line.
//
// The result contains no "\r" and no run of three or more newlines.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = numberedLineRe.ReplaceAllString(text, "$1. $2")
	text = bulletLineRe.ReplaceAllString(text, "- $1")

	text = excessBreakRe.ReplaceAllString(text, "\n\n")

	return separateListItems(text)
}

// separateListItems inserts a blank line before list items that directly
// follow a non-blank line. A list item on the first line is left alone.
func separateListItems(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+len(lines)/2)

	for i, line := range lines {
		if i > 0 && listItemStartRe.MatchString(line) && strings.TrimSpace(lines[i-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
