// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the rigrun-chat commands.
//
// Output adapts to where it goes:
// - Interactive terminals get colors and width aware wrapping
// - Piped output gets plain text
// - NO_COLOR disables colors, FORCE_COLOR forces them

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/rigrun-chat/internal/render"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails.
	DefaultTerminalWidth = render.DefaultTerminalWidth

	// MinTerminalWidth is the narrowest width used for wrapping.
	MinTerminalWidth = 40

	// MaxTerminalWidth keeps rendered answers readable on wide terminals.
	MaxTerminalWidth = 120
)

// GetTerminalWidth returns the stdout terminal width clamped to
// [MinTerminalWidth, MaxTerminalWidth].
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return clampWidth(width)
}

func clampWidth(w int) int {
	switch {
	case w < MinTerminalWidth:
		return MinTerminalWidth
	case w > MaxTerminalWidth:
		return MaxTerminalWidth
	default:
		return w
	}
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled reports whether colored output should be used.
// See https://no-color.org/ for NO_COLOR.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		colorsEnabled = detectColors(os.Getenv, IsStdoutTTY())
	})
	return colorsEnabled
}

func detectColors(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return tty
}

// GetColorProfile returns the termenv profile for stdout.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// TerminalStyle picks the glamour style for stdout: notty without colors,
// otherwise dark or light from the terminal background.
func TerminalStyle() string {
	if !ColorsEnabled() {
		return render.StyleNoTTY
	}
	if termenv.HasDarkBackground() {
		return render.StyleDark
	}
	return render.StyleLight
}
