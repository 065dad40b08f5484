// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Terminal styles understood by glamour.
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

// DefaultTerminalWidth is used when the terminal width is unknown.
const DefaultTerminalWidth = 80

// TerminalRenderer renders answers as ANSI styled text for the command line.
// Input is normalized the same way as for HTML output.
type TerminalRenderer struct {
	tr *glamour.TermRenderer
}

// NewTerminalRenderer builds a glamour renderer with the given standard style
// and word wrap width.
func NewTerminalRenderer(style string, width int) (*TerminalRenderer, error) {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	if style == "" {
		style = StyleNoTTY
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return &TerminalRenderer{tr: tr}, nil
}

// Render renders raw for the terminal. On error the normalized text is
// returned unstyled together with the error.
func (t *TerminalRenderer) Render(raw string) (string, error) {
	normalized := Normalize(raw)
	out, err := t.tr.Render(normalized)
	if err != nil {
		return normalized, fmt.Errorf("render for terminal: %w", err)
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}
