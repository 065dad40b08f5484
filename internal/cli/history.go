// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chat/internal/export"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/util"
)

type historyOptions struct {
	limit  int
	format string
	outDir string
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	ho := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List stored conversations or show one",
		Long: `Without arguments, list the most recent conversations.
With a session ID, print that conversation, or export it with --export.

Examples:
  rigrun-chat history
  rigrun-chat history 3f2a9c1e-...
  rigrun-chat history 3f2a9c1e-... --export html --out ./exports`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return listSessions(cmd.Context(), out, store, ho.limit)
			}
			if ho.format != "" {
				return exportSession(cmd.Context(), out, store, args[0], ho)
			}
			return showSession(cmd.Context(), out, store, args[0])
		},
	}

	cmd.Flags().IntVarP(&ho.limit, "limit", "n", 20, "number of conversations to list")
	cmd.Flags().StringVarP(&ho.format, "export", "e", "", "export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&ho.outDir, "out", "o", ".", "export directory")
	return cmd
}

// =============================================================================
// LIST
// =============================================================================

const (
	colSession  = 36
	colMessages = 8
	colActivity = 19
)

func listSessions(ctx context.Context, out io.Writer, store *storage.Store, limit int) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, DimStyle.Render("Belum ada percakapan tersimpan."))
		return nil
	}

	questionWidth := GetTerminalWidth() - colSession - colMessages - colActivity - 6
	if questionWidth < 20 {
		questionWidth = 20
	}

	header := strings.Join([]string{
		util.PadWidth("SESSION", colSession),
		util.PadWidth("MSGS", colMessages),
		util.PadWidth("LAST ACTIVITY", colActivity),
		"FIRST QUESTION",
	}, "  ")
	fmt.Fprintln(out, HeaderStyle.Render(header))

	for _, s := range sessions {
		row := strings.Join([]string{
			util.PadWidth(s.SessionID, colSession),
			util.PadWidth(strconv.Itoa(s.MessageCount), colMessages),
			util.PadWidth(s.LastActivity.Local().Format("2006-01-02 15:04:05"), colActivity),
			util.TruncateWidth(util.OneLine(s.FirstQuestion), questionWidth),
		}, "  ")
		fmt.Fprintln(out, row)
	}
	return nil
}

// =============================================================================
// SHOW / EXPORT
// =============================================================================

func loadSession(ctx context.Context, store *storage.Store, id string) ([]storage.Message, error) {
	messages, err := store.History(ctx, id, maxExportMessages)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return messages, nil
}

func showSession(ctx context.Context, out io.Writer, store *storage.Store, id string) error {
	messages, err := loadSession(ctx, store, id)
	if err != nil {
		return err
	}

	tr, err := render.NewTerminalRenderer(TerminalStyle(), GetTerminalWidth())
	if err != nil {
		return err
	}

	t := export.NewTranscript(id, messages)
	fmt.Fprintln(out, TitleStyle.Render(t.Title))
	for _, m := range messages {
		stamp := DimStyle.Render(m.CreatedAt.Local().Format("15:04"))
		if m.Type == storage.TypeHuman {
			fmt.Fprintln(out, PromptStyle.Render("Pengguna")+" "+stamp)
			fmt.Fprintln(out, m.Content)
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintln(out, SuccessStyle.Render("Asisten")+" "+stamp)
		rendered, _ := tr.Render(m.Content)
		fmt.Fprint(out, rendered)
		fmt.Fprintln(out)
	}
	return nil
}

func exportSession(ctx context.Context, out io.Writer, store *storage.Store, id string, ho *historyOptions) error {
	exp, err := export.ForFormat(ho.format, export.DefaultOptions(), render.NewDefault(nil))
	if err != nil {
		return err
	}
	messages, err := loadSession(ctx, store, id)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(export.NewTranscript(id, messages), exp, ho.outDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}
