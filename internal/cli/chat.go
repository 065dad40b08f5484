// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive terminal chat.
//
// Questions go through the same validation and backend as the web page,
// answers are rendered with glamour and the conversation is stored so
// "rigrun-chat history" can list and export it.
//
// Interactive Commands (during chat):
//   /help, /h            Show available commands
//   /clear, /c           Start a new conversation
//   /history             Show the conversation so far
//   /export [md|html|json] Export the conversation to the current directory
//   /quit, /q            Exit chat
//   Ctrl+C               Cancel the current answer
//   Ctrl+D               Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/export"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/util"
	"github.com/jeranaias/rigrun-chat/internal/view"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved input history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f) //nolint:errcheck
		f.Close()
	}
	return c
}

// ReadInput reads a line with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the input history (0600) and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			c.line.WriteHistory(f) //nolint:errcheck
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is one terminal conversation.
type ChatSession struct {
	ID       string
	Answers  *answer.Service
	Store    *storage.Store // nil disables persistence
	Terminal *render.TerminalRenderer
	Out      io.Writer

	HistoryLimit int
	ExportDir    string

	history   []answer.Turn
	questions int
	started   time.Time
}

// NewChatSession starts a conversation with a fresh session ID.
func NewChatSession(answers *answer.Service, store *storage.Store, tr *render.TerminalRenderer, out io.Writer) *ChatSession {
	return &ChatSession{
		ID:           uuid.NewString(),
		Answers:      answers,
		Store:        store,
		Terminal:     tr,
		Out:          out,
		HistoryLimit: 50,
		ExportDir:    ".",
		started:      time.Now(),
	}
}

// Resume loads the stored history of session id.
func (s *ChatSession) Resume(ctx context.Context, id string) error {
	if s.Store == nil {
		return errors.New("resume needs the conversation store")
	}
	stored, err := s.Store.History(ctx, id, s.HistoryLimit)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	s.ID = id
	s.history = s.history[:0]
	for _, m := range stored {
		s.history = append(s.history, answer.Turn{Role: string(m.Type), Content: m.Content})
	}
	return nil
}

// HandleLine processes one line of input. It returns false when the user
// asked to quit.
func (s *ChatSession) HandleLine(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return true, nil
	case strings.HasPrefix(input, "/"):
		return s.handleSlashCommand(ctx, input)
	case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
		return false, nil
	}
	return true, s.Ask(ctx, input)
}

// Ask answers one question and prints the result.
func (s *ChatSession) Ask(ctx context.Context, question string) error {
	q, err := s.Answers.Validate(question)
	if err != nil {
		var qe *answer.QuestionError
		if errors.As(err, &qe) {
			fmt.Fprintln(s.Out, WarningStyle.Render(qe.Message))
			return nil
		}
		return err
	}

	res, err := s.Answers.Answer(ctx, answer.Request{
		SessionID: s.ID,
		Question:  q,
		History:   s.history,
	})
	if err != nil {
		return err
	}

	s.printAnswer(res)
	if res.Failed() {
		return nil
	}

	s.questions++
	s.remember(answer.Turn{Role: answer.RoleHuman, Content: q}, answer.Turn{Role: answer.RoleAI, Content: res.Answer})
	if s.Store == nil {
		return nil
	}
	return s.Store.AppendTurn(ctx, s.ID, q, res.StoredReply())
}

func (s *ChatSession) remember(turns ...answer.Turn) {
	s.history = append(s.history, turns...)
	if s.HistoryLimit > 0 && len(s.history) > s.HistoryLimit {
		s.history = s.history[len(s.history)-s.HistoryLimit:]
	}
}

func (s *ChatSession) printAnswer(res *answer.Result) {
	if res.Failed() {
		fmt.Fprintln(s.Out, ErrorStyle.Render(res.Answer))
		return
	}

	text := res.Answer
	if s.Terminal != nil {
		if rendered, err := s.Terminal.Render(res.Answer); err == nil {
			text = rendered
		}
	}
	fmt.Fprint(s.Out, strings.TrimRight(text, "\n")+"\n")

	msg := view.AIMessage(res)
	if badge := msg.Badge(); badge != nil {
		fmt.Fprintln(s.Out, RenderBadge(badge))
	}
	if len(res.Sources) > 0 {
		fmt.Fprintln(s.Out, DimStyle.Render("Sumber informasi:"))
		for _, src := range res.Sources {
			label := src.Label()
			if src.Page > 0 {
				label = fmt.Sprintf("%s (hal. %d)", label, src.Page)
			}
			fmt.Fprintln(s.Out, DimStyle.Render("  - "+label))
		}
	}
	if res.NeedsContinuation {
		fmt.Fprintln(s.Out, WarningStyle.Render(
			fmt.Sprintf("Jawaban terpotong. Ketik %q untuk melanjutkan.", answer.ContinuationPrompt)))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *ChatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
	case "/clear", "/c":
		s.ID = uuid.NewString()
		s.history = s.history[:0]
		fmt.Fprintln(s.Out, SuccessStyle.Render("[Percakapan baru dimulai]"))
	case "/history":
		s.printHistory()
	case "/export":
		format := "md"
		if len(args) > 0 {
			format = args[0]
		}
		return true, s.exportTo(ctx, format)
	case "/quit", "/q", "/exit":
		return false, nil
	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

func (s *ChatSession) exportTo(ctx context.Context, format string) error {
	if s.Store == nil {
		return errors.New("export needs the conversation store")
	}
	exp, err := export.ForFormat(format, export.DefaultOptions(), render.NewDefault(nil))
	if err != nil {
		return err
	}
	stored, err := s.Store.History(ctx, s.ID, maxExportMessages)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(export.NewTranscript(s.ID, stored), exp, s.ExportDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Out, SuccessStyle.Render("Diekspor ke "+path))
	return nil
}

func (s *ChatSession) printHelp() {
	fmt.Fprintln(s.Out, TitleStyle.Render("Perintah"))
	for _, row := range [][2]string{
		{"/help", "Tampilkan bantuan ini"},
		{"/clear", "Mulai percakapan baru"},
		{"/history", "Tampilkan percakapan"},
		{"/export [md|html|json]", "Ekspor percakapan ke direktori saat ini"},
		{"/quit", "Keluar"},
	} {
		fmt.Fprintln(s.Out, "  "+RenderLabel(row[0])+DimStyle.Render(row[1]))
	}
}

func (s *ChatSession) printHistory() {
	if len(s.history) == 0 {
		fmt.Fprintln(s.Out, DimStyle.Render("(belum ada percakapan)"))
		return
	}
	width := GetTerminalWidth() - 14
	for _, t := range s.history {
		role := "Pengguna"
		if t.Role == answer.RoleAI {
			role = "Asisten"
		}
		fmt.Fprintln(s.Out, RenderLabel(role)+util.TruncateWidth(util.OneLine(t.Content), width))
	}
}

func (s *ChatSession) printSummary() {
	if s.questions == 0 {
		fmt.Fprintln(s.Out, DimStyle.Render("Sampai jumpa!"))
		return
	}
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, TitleStyle.Render("Ringkasan sesi"))
	fmt.Fprintln(s.Out, "  "+RenderLabel("Pertanyaan:")+fmt.Sprint(s.questions))
	fmt.Fprintln(s.Out, "  "+RenderLabel("Durasi:")+time.Since(s.started).Round(time.Second).String())
	if s.Store != nil {
		fmt.Fprintln(s.Out, "  "+RenderLabel("Sesi:")+s.ID)
	}
}

// =============================================================================
// COMMAND
// =============================================================================

const maxExportMessages = 10000

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		noSave  bool
		resume  string
		model   string
		exports string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the answer backend in the terminal",
		Long: `Start an interactive chat in the terminal.

Uses the configured backend and question limits. Conversations are stored
in the chat database unless --no-save is given.

Examples:
  rigrun-chat chat
  rigrun-chat chat --model llama3.2:3b
  rigrun-chat chat --resume 3f2a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Backend.Model = model
			}
			if !opts.verbose {
				cfg.Logging.Level = "warn"
			}
			logger, _, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			backend := newBackend(cfg)
			if backend == nil {
				return errors.New("no answer backend configured (set backend.type to ollama or http)")
			}
			limits, err := newLimits(cfg)
			if err != nil {
				return err
			}
			answers := answer.NewService(backend, limits, logger.Named("answer"))

			var store *storage.Store
			if !noSave || resume != "" {
				if store, err = openStore(cfg); err != nil {
					return err
				}
				defer store.Close()
			}

			tr, err := render.NewTerminalRenderer(TerminalStyle(), GetTerminalWidth())
			if err != nil {
				logger.Warn("TERMINAL_RENDER_UNAVAILABLE", zap.Error(err))
				tr = nil
			}

			session := NewChatSession(answers, store, tr, cmd.OutOrStdout())
			session.HistoryLimit = cfg.Chat.HistoryLimit
			session.ExportDir = exports
			if resume != "" {
				if err := session.Resume(cmd.Context(), resume); err != nil {
					return err
				}
			}
			if noSave {
				session.Store = nil
			}
			return runChat(cmd.Context(), session, backend.Name())
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the conversation")
	cmd.Flags().StringVar(&resume, "resume", "", "continue a stored conversation by session ID")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Ollama model (overrides backend.model)")
	cmd.Flags().StringVar(&exports, "export-dir", ".", "directory for /export")
	return cmd
}

// runChat is the REPL loop. The first Ctrl+C during an answer cancels it;
// Ctrl+C or Ctrl+D at the prompt exits.
func runChat(ctx context.Context, session *ChatSession, backendName string) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	input := NewChatCLI()
	defer input.Close()

	fmt.Fprintln(session.Out, TitleStyle.Render("rigrun chat")+" "+DimStyle.Render(backendName))
	fmt.Fprintln(session.Out, DimStyle.Render("Ketik /help untuk bantuan, /quit untuk keluar."))
	fmt.Fprintln(session.Out, RenderSeparator(GetTerminalWidth()-2))

	for {
		line, err := input.ReadInput(PromptStyle.Render("rigrun> "))
		if err != nil {
			// Ctrl+C (liner.ErrPromptAborted) or Ctrl+D (io.EOF).
			fmt.Fprintln(session.Out)
			session.printSummary()
			return nil
		}

		askCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		keepGoing, err := session.HandleLine(askCtx, line)
		cancelled := askCtx.Err() != nil && ctx.Err() == nil
		stop()

		if cancelled {
			fmt.Fprintln(session.Out, WarningStyle.Render("[Dibatalkan]"))
		} else if err != nil {
			fmt.Fprintln(session.Out, ErrorStyle.Render("[Error]"), err)
		}
		if !keepGoing {
			session.printSummary()
			return nil
		}
	}
}

// RequiresTTY returns an error if stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return fmt.Errorf("stdin is not a terminal; cannot %s interactively", operation)
	}
	return nil
}
