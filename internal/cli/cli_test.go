// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/server"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// tempConfig returns a config path in a temp dir and points the database
// there too.
func tempConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "chat.db")
	t.Setenv("RIGRUN_CHAT_DB", dbPath)
	return filepath.Join(dir, "config.toml"), dbPath
}

type cannedBackend struct {
	answer string
	err    error
}

func (b *cannedBackend) Answer(context.Context, answer.Request) (*answer.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	conf := 0.9
	return &answer.Result{
		Answer:     b.answer,
		Confidence: &conf,
		Sources:    []answer.Source{{Source: "faq.pdf", Page: 2}},
	}, nil
}

func (b *cannedBackend) Name() string              { return "canned" }
func (b *cannedBackend) Ping(context.Context) error { return nil }

// =============================================================================
// VERSION / CONFIG TESTS
// =============================================================================

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rigrun-chat "+Version)
}

func TestConfigCmd(t *testing.T) {
	cfgPath, _ := tempConfig(t)

	out, err := runCmd(t, "", "--config", cfgPath, "config", "path")
	require.NoError(t, err)
	if strings.TrimSpace(out) != cfgPath {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(out), cfgPath)
	}

	_, err = runCmd(t, "", "--config", cfgPath, "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(cfgPath)
	require.NoError(t, err)

	_, err = runCmd(t, "", "--config", cfgPath, "config", "init")
	assert.Error(t, err, "init must not overwrite without --force")

	_, err = runCmd(t, "", "--config", cfgPath, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = runCmd(t, "", "--config", cfgPath, "config", "get", "chat.max_question_chars")
	require.NoError(t, err)
	assert.Equal(t, "1000", strings.TrimSpace(out))

	_, err = runCmd(t, "", "--config", cfgPath, "config", "get", "chat.nope")
	assert.Error(t, err)

	out, err = runCmd(t, "", "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"max_question_chars": 1000`)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	cfgPath, _ := tempConfig(t)
	t.Setenv("RIGRUN_CHAT_ADMIN_TOKEN", "super-secret")

	out, err := runCmd(t, "", "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "[REDACTED]")
}

func TestAdminTOTP(t *testing.T) {
	cfgPath, _ := tempConfig(t)

	out, err := runCmd(t, "", "--config", cfgPath, "admin", "totp")
	require.NoError(t, err)
	assert.Contains(t, out, "otpauth://totp/")

	_, err = runCmd(t, "", "--config", cfgPath, "admin", "totp", "--save")
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Server.AdminTOTPSecret)
}

// =============================================================================
// RENDER TESTS
// =============================================================================

func TestRenderCmd(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{"html from stdin", []string{"render"}, "**bold**", "<strong>bold</strong>", false},
		{"html dash", []string{"render", "-"}, "# Judul", "<h1>Judul</h1>", false},
		{"fallback", []string{"render", "--format", "fallback"}, "- a\n- b", "<ul>", false},
		{"terminal", []string{"render", "--format", "terminal", "--style", "notty", "--width", "60"}, "# Judul\n\nisi", "Judul", false},
		{"unknown format", []string{"render", "--format", "pdf"}, "x", "", true},
		{"missing file", []string{"render", "/nonexistent/answer.md"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, tt.stdin, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRenderCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.md")
	require.NoError(t, os.WriteFile(path, []byte("<script>x</script> *ok*"), 0o600))

	out, err := runCmd(t, "", "render", path)
	require.NoError(t, err)
	assert.Contains(t, out, "<em>ok</em>")
	assert.NotContains(t, out, "<script")
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func seedConversation(t *testing.T, dbPath, sessionID string) {
	t.Helper()
	store, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendMessage(ctx, &storage.Message{SessionID: sessionID, Type: storage.TypeHuman, Content: "Bagaimana cara mendaftar?"}))
	require.NoError(t, store.AppendMessage(ctx, &storage.Message{SessionID: sessionID, Type: storage.TypeAI, Content: "Isi **formulir** pendaftaran.", RunID: "run-1"}))
}

func TestHistoryCmd(t *testing.T) {
	cfgPath, dbPath := tempConfig(t)

	out, err := runCmd(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Belum ada percakapan")

	const sid = "8c4f0a57-6b7e-4b8e-9d55-0c6a2f1e9b10"
	seedConversation(t, dbPath, sid)

	out, err = runCmd(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, sid)
	assert.Contains(t, out, "Bagaimana cara mendaftar?")

	out, err = runCmd(t, "", "--config", cfgPath, "history", sid)
	require.NoError(t, err)
	assert.Contains(t, out, "Pengguna")
	assert.Contains(t, out, "formulir")

	exportDir := t.TempDir()
	out, err = runCmd(t, "", "--config", cfgPath, "history", sid, "--export", "md", "--out", exportDir)
	require.NoError(t, err)
	written := strings.TrimSpace(out)
	assert.Equal(t, exportDir, filepath.Dir(written))
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Bagaimana cara mendaftar?")

	_, err = runCmd(t, "", "--config", cfgPath, "history", "missing-session")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// =============================================================================
// CHAT SESSION TESTS
// =============================================================================

func newTestChat(t *testing.T, backend answer.Backend) (*ChatSession, *bytes.Buffer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tr, err := render.NewTerminalRenderer(render.StyleNoTTY, 60)
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewChatSession(answer.NewService(backend, answer.DefaultLimits(), nil), store, tr, &out)
	s.ExportDir = t.TempDir()
	return s, &out, store
}

func TestChatSession_AskStoresConversation(t *testing.T) {
	s, out, store := newTestChat(t, &cannedBackend{answer: "Jawaban **penting**"})
	ctx := context.Background()

	keepGoing, err := s.HandleLine(ctx, "  Apa syaratnya?  ")
	require.NoError(t, err)
	assert.True(t, keepGoing)

	assert.Contains(t, out.String(), "penting")
	assert.Contains(t, out.String(), "Tingkat keyakinan: 90%")
	assert.Contains(t, out.String(), "faq.pdf (hal. 2)")

	stored, err := store.History(ctx, s.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Apa syaratnya?", stored[0].Content)
	require.Len(t, s.history, 2)
	assert.Equal(t, "Apa syaratnya?", s.history[0].Content)
}

func TestChatSession_InvalidQuestionIsWarning(t *testing.T) {
	s, out, _ := newTestChat(t, &cannedBackend{answer: "x"})

	_, err := s.HandleLine(context.Background(), strings.Repeat("a", 1001))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Pertanyaan terlalu panjang")
	assert.Empty(t, s.history)
}

func TestChatSession_FailedAnswerNotStored(t *testing.T) {
	s, out, store := newTestChat(t, &cannedBackend{err: errors.New("down")})

	_, err := s.HandleLine(context.Background(), "halo")
	require.NoError(t, err)
	assert.Contains(t, out.String(), answer.ErrorAnswer)

	stored, err := store.History(context.Background(), s.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestChatSession_SlashCommands(t *testing.T) {
	s, out, _ := newTestChat(t, &cannedBackend{answer: "ok"})
	ctx := context.Background()

	_, err := s.HandleLine(ctx, "pertanyaan")
	require.NoError(t, err)

	_, err = s.HandleLine(ctx, "/export json")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Diekspor ke")
	files, _ := filepath.Glob(filepath.Join(s.ExportDir, "*.json"))
	assert.Len(t, files, 1)

	oldID := s.ID
	_, err = s.HandleLine(ctx, "/clear")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, s.ID)
	assert.Empty(t, s.history)

	_, err = s.HandleLine(ctx, "/bogus")
	assert.Error(t, err)

	keepGoing, err := s.HandleLine(ctx, "/quit")
	require.NoError(t, err)
	assert.False(t, keepGoing)

	keepGoing, _ = s.HandleLine(ctx, "exit")
	assert.False(t, keepGoing)
}

func TestChatSession_Resume(t *testing.T) {
	s, _, store := newTestChat(t, &cannedBackend{answer: "ok"})
	ctx := context.Background()

	_, err := s.HandleLine(ctx, "pertama")
	require.NoError(t, err)
	id := s.ID

	resumed := NewChatSession(s.Answers, store, nil, &bytes.Buffer{})
	require.NoError(t, resumed.Resume(ctx, id))
	assert.Equal(t, id, resumed.ID)
	require.Len(t, resumed.history, 2)
	assert.Equal(t, answer.RoleHuman, resumed.history[0].Role)

	assert.ErrorIs(t, resumed.Resume(ctx, "unknown"), storage.ErrNotFound)
}

// =============================================================================
// WIRING TESTS
// =============================================================================

func TestNewBackend(t *testing.T) {
	cfg := config.Default()

	cfg.Backend.Type = config.BackendOllama
	b := newBackend(cfg)
	require.NotNil(t, b)
	assert.Equal(t, "ollama:"+cfg.Backend.Model, b.Name())

	cfg.Backend.Type = config.BackendHTTP
	cfg.Backend.URL = "http://rag.internal:9000"
	b = newBackend(cfg)
	require.NotNil(t, b)
	assert.Equal(t, "http:http://rag.internal:9000", b.Name())

	cfg.Backend.Type = config.BackendNone
	assert.Nil(t, newBackend(cfg))
}

func TestNewLimits(t *testing.T) {
	cfg := config.Default()
	limits, err := newLimits(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1000, limits.MaxChars)
	assert.Len(t, limits.Blocked, len(cfg.Chat.BlockedPatterns))

	cfg.Chat.BlockedPatterns = []string{"("}
	_, err = newLimits(cfg)
	assert.Error(t, err)
}

func TestNewRenderer_Fallback(t *testing.T) {
	cfg := config.Default()
	cfg.Render.Engine = config.EngineFallback

	got := newRenderer(cfg, nil, nil).Render("1. a\n2. b")
	assert.Contains(t, got, "<ol>")
}

// =============================================================================
// TERMINAL TESTS
// =============================================================================

func TestDetectColors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"no color wins", map[string]string{"NO_COLOR": "1", "FORCE_COLOR": "1"}, true, false},
		{"force color", map[string]string{"FORCE_COLOR": "1"}, false, true},
	}
	for _, tt := range tests {
		getenv := func(k string) string { return tt.env[k] }
		if got := detectColors(getenv, tt.tty); got != tt.want {
			t.Errorf("%s: detectColors() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClampWidth(t *testing.T) {
	tests := []struct{ in, want int }{
		{10, MinTerminalWidth},
		{80, 80},
		{500, MaxTerminalWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in); got != tt.want {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestApplyTrustedProxies_EmptyRestoresDefaults(t *testing.T) {
	t.Cleanup(func() { applyTrustedProxies(nil, zap.NewNop()) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	applyTrustedProxies([]string{"203.0.113.5"}, zap.NewNop())
	assert.Equal(t, "10.0.0.1", server.GetClientIP(req))

	applyTrustedProxies(nil, zap.NewNop())
	assert.Equal(t, "198.51.100.7", server.GetClientIP(req))
}

func TestApplyTrustedProxies_LogsInvalid(t *testing.T) {
	t.Cleanup(func() { applyTrustedProxies(nil, zap.NewNop()) })

	core, logs := observer.New(zapcore.WarnLevel)
	applyTrustedProxies([]string{"not-an-ip", "192.0.2.1"}, zap.New(core))

	entries := logs.FilterMessage("TRUSTED_PROXY_INVALID").All()
	require.Len(t, entries, 1)
}
