// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/render"
)

// Render output formats.
const (
	formatHTML     = "html"
	formatTerminal = "terminal"
	formatFallback = "fallback"
)

type renderOptions struct {
	format string
	width  int
	style  string
}

func newRenderCmd(_ *rootOptions) *cobra.Command {
	ro := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [file|-]",
		Short: "Render answer markdown to HTML or the terminal",
		Long: `Render answer markdown exactly as the chat page does.

Reads the file argument, or stdin when it is missing or "-".

Formats:
  html       goldmark + sanitizer (the server's default path)
  fallback   line based formatter used when the engine fails
  terminal   ANSI styled text via glamour`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			text, err := readSource(src, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runRender(cmd.OutOrStdout(), text, ro)
		},
	}

	cmd.Flags().StringVarP(&ro.format, "format", "f", formatHTML, "output format: html, fallback or terminal")
	cmd.Flags().IntVarP(&ro.width, "width", "w", 0, "terminal word wrap width (default: terminal width)")
	cmd.Flags().StringVar(&ro.style, "style", "", "terminal style: dark, light or notty (default: detected)")
	return cmd
}

func readSource(src string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return string(data), nil
}

func runRender(out io.Writer, text string, ro *renderOptions) error {
	switch strings.ToLower(ro.format) {
	case formatHTML:
		fmt.Fprintln(out, render.NewDefault(zap.NewNop()).Render(text))
	case formatFallback:
		fmt.Fprintln(out, render.New().Render(text))
	case formatTerminal:
		style := ro.style
		if style == "" {
			style = TerminalStyle()
		}
		width := ro.width
		if width <= 0 {
			width = GetTerminalWidth()
		}
		tr, err := render.NewTerminalRenderer(style, width)
		if err != nil {
			return err
		}
		rendered, err := tr.Render(text)
		fmt.Fprint(out, rendered)
		return err
	default:
		return fmt.Errorf("unknown format %q (want html, fallback or terminal)", ro.format)
	}
	return nil
}
