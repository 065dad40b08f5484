// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/metrics"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/session"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/view"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type stubBackend struct {
	mu       sync.Mutex
	answer   string
	err      error
	truncate bool
	requests []answer.Request
}

func (b *stubBackend) Answer(_ context.Context, req answer.Request) (*answer.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	conf := 0.85
	return &answer.Result{
		Answer:            b.answer,
		Sources:           []answer.Source{{Title: "Panduan", Source: "panduan.pdf", Page: 3}},
		Confidence:        &conf,
		NeedsContinuation: b.truncate,
	}, nil
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Ping(context.Context) error { return b.err }

func (b *stubBackend) last() answer.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	client   *http.Client
	store    *storage.Store
	sessions *session.Manager
	backend  *stubBackend
}

type envOption func(*Config, *session.Config)

func newTestEnv(t *testing.T, backend *stubBackend, opts ...envOption) *testEnv {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := Config{HistoryLimit: 20}
	sessCfg := session.Config{}
	for _, opt := range opts {
		opt(&cfg, &sessCfg)
	}

	sessions, err := session.NewManager(sessCfg)
	require.NoError(t, err)

	renderer := render.NewDefault(nil)
	views, err := view.New(renderer, view.DefaultOptions())
	require.NoError(t, err)

	var b answer.Backend
	if backend != nil {
		b = backend
	}

	srv, err := New(cfg, Deps{
		Answers:  answer.NewService(b, answer.DefaultLimits(), nil),
		Store:    store,
		Sessions: sessions,
		Views:    views,
		Renderer: renderer,
		Metrics:  metrics.New(),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		srv:      srv,
		http:     ts,
		client:   &http.Client{Jar: jar},
		store:    store,
		sessions: sessions,
		backend:  backend,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.http.URL+path, r)
	require.NoError(t, err)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeBody(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_AnswersAndPersists(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "**Halo** dunia"})

	resp, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "  Apa itu layanan ini?  "})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	body := decodeBody(t, data)
	assert.Equal(t, "**Halo** dunia", body["answer"])
	assert.Contains(t, body["answer_html"], "<strong>Halo</strong>")
	assert.Contains(t, body["message_html"], "85%")
	assert.InDelta(t, 0.85, body["confidence"], 0.0001)
	assert.Equal(t, false, body["needs_continuation"])

	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	meta, _ := body["metadata"].(map[string]any)
	require.NotNil(t, meta)
	assert.NotEmpty(t, meta[answer.MetaRunID])

	assert.Equal(t, "Apa itu layanan ini?", env.backend.last().Question)

	stored, err := env.store.History(context.Background(), sessionID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, storage.TypeHuman, stored[0].Type)
	assert.Equal(t, "Apa itu layanan ini?", stored[0].Content)
	assert.Equal(t, storage.TypeAI, stored[1].Type)
	assert.Equal(t, meta[answer.MetaRunID], stored[1].RunID)
	require.Len(t, stored[1].Sources, 1)
	assert.Equal(t, "panduan.pdf", stored[1].Sources[0].Source)
}

func TestChat_SendsHistoryToBackend(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "jawaban"})

	resp, _ := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "pertama"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/chat", ChatRequest{Question: answer.ContinuationPrompt})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := env.backend.last().History
	require.Len(t, history, 2)
	assert.Equal(t, answer.RoleHuman, history[0].Role)
	assert.Equal(t, "pertama", history[0].Content)
	assert.Equal(t, answer.RoleAI, history[1].Role)
}

func TestChat_Validation(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"})

	tests := []struct {
		name string
		body any
		want int
		msg  string
	}{
		{"empty question", ChatRequest{Question: "   "}, http.StatusBadRequest, "Pertanyaan tidak boleh kosong"},
		{"too long", ChatRequest{Question: strings.Repeat("a", 1001)}, http.StatusBadRequest, "Maksimal 1000 karakter"},
		{"malformed json", "{", http.StatusBadRequest, msgBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, http.MethodPost, "/chat", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			assert.Contains(t, decodeBody(t, data)["error"], tt.msg)
		})
	}
	assert.Empty(t, env.backend.requests)
}

func TestChat_NoBackend(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, msgUnavailable, decodeBody(t, data)["error"])
}

func TestChat_BackendFailureIsNotStored(t *testing.T) {
	env := newTestEnv(t, &stubBackend{err: errors.New("model crashed")})

	resp, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, data)
	assert.Equal(t, answer.ErrorAnswer, body["answer"])
	assert.InDelta(t, 0, body["confidence"], 0.0001)
	meta, _ := body["metadata"].(map[string]any)
	assert.Equal(t, true, meta[answer.MetaError])
	assert.Contains(t, body["message_html"], "bubble-error")
	assert.NotContains(t, body["message_html"], "bubble-ai")

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Messages)
}

func TestChat_SessionRateLimit(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"}, func(_ *Config, s *session.Config) {
		s.MinInterval = time.Hour
	})

	resp, _ := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "satu"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "dua"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, msgTooManyRequests, decodeBody(t, data)["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestChat_ContinuationFlag(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "bagian pertama", truncate: true})

	resp, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "jelaskan panjang"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, data)
	assert.Equal(t, true, body["needs_continuation"])
	assert.Contains(t, body["message_html"], "Lanjutkan")
}

// =============================================================================
// HISTORY / CLEAR / EXPORT TESTS
// =============================================================================

func TestHistory_WithoutSessionIsEmpty(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"})

	resp, data := env.do(t, http.MethodGet, "/chat/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"history":[]}`, string(data))
	assert.Empty(t, resp.Header.Values("Set-Cookie"))
}

func TestHistory_ReturnsConversation(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "# Judul"})
	env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})

	resp, data := env.do(t, http.MethodGet, "/chat/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		History []HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.History, 2)
	assert.Equal(t, "human", body.History[0].Type)
	assert.Empty(t, body.History[0].ContentHTML)
	assert.Equal(t, "ai", body.History[1].Type)
	assert.Contains(t, body.History[1].ContentHTML, "<h1>Judul</h1>")
	assert.NotEmpty(t, body.History[1].RunID)
}

func TestClear_RemovesConversation(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"})
	_, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})
	sessionID := decodeBody(t, data)["session_id"].(string)

	resp, data := env.do(t, http.MethodPost, "/chat/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, data)["success"])

	stored, err := env.store.History(context.Background(), sessionID, 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
	if _, ok := env.sessions.Status(sessionID); ok {
		t.Errorf("session %s still tracked after clear", sessionID)
	}

	_, data = env.do(t, http.MethodGet, "/chat/history", nil)
	assert.JSONEq(t, `{"history":[]}`, string(data))
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "jawaban"})

	resp, _ := env.do(t, http.MethodGet, "/chat/export", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})

	tests := []struct {
		format      string
		contentType string
		ext         string
	}{
		{"md", "text/markdown", ".md"},
		{"html", "text/html", ".html"},
		{"json", "application/json", ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp, data := env.do(t, http.MethodGet, "/chat/export?format="+tt.format, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
			assert.Contains(t, resp.Header.Get("Content-Disposition"), tt.ext)
			assert.Contains(t, string(data), "jawaban")
		})
	}

	resp, _ = env.do(t, http.MethodGet, "/chat/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// FEEDBACK / RENDER TESTS
// =============================================================================

func TestFeedback(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"})
	_, data := env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})
	meta := decodeBody(t, data)["metadata"].(map[string]any)
	runID := meta[answer.MetaRunID].(string)

	tests := []struct {
		name string
		req  FeedbackRequest
		want int
	}{
		{"valid", FeedbackRequest{RunID: runID, Rating: 5, Comment: "mantap"}, http.StatusOK},
		{"missing run id", FeedbackRequest{Rating: 3}, http.StatusBadRequest},
		{"rating too low", FeedbackRequest{RunID: runID, Rating: 0}, http.StatusBadRequest},
		{"rating too high", FeedbackRequest{RunID: runID, Rating: 6}, http.StatusBadRequest},
		{"unknown run", FeedbackRequest{RunID: "nope", Rating: 4}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, http.MethodPost, "/feedback", tt.req)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, data)
			}
		})
	}

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Feedback)
}

func TestRender(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodPost, "/render", RenderRequest{Text: "**a** <script>x</script>"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	html := decodeBody(t, data)["html"].(string)
	assert.Contains(t, html, "<strong>a</strong>")
	assert.NotContains(t, html, "<script")
}

// =============================================================================
// PAGE / HEALTH / ADMIN TESTS
// =============================================================================

func TestIndex_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(data), `id="chat-messages"`)
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, env.sessions.CookieName(), cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestStatic(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/static/chat.js", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "data-action")
}

func TestHealth(t *testing.T) {
	t.Run("backend up", func(t *testing.T) {
		env := newTestEnv(t, &stubBackend{answer: "x"})
		resp, data := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var h HealthResponse
		require.NoError(t, json.Unmarshal(data, &h))
		assert.Equal(t, "ok", h.Status)
		assert.Equal(t, "stub", h.Backend)
		assert.Equal(t, Version, h.Version)
	})

	t.Run("no backend", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp, data := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var h HealthResponse
		require.NoError(t, json.Unmarshal(data, &h))
		assert.Equal(t, "degraded", h.Status)
		assert.Equal(t, "not_configured", h.BackendStatus)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"})
	env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})

	resp, data := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "rigrun_chat_questions_total")
	assert.Contains(t, string(data), `route="POST /chat"`)
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/admin/stats", nil, "Authorization", "Bearer anything")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_BearerToken(t *testing.T) {
	env := newTestEnv(t, &stubBackend{answer: "x"}, func(c *Config, _ *session.Config) {
		c.Auth.BearerToken = "s3cret"
	})
	env.do(t, http.MethodPost, "/chat", ChatRequest{Question: "halo"})

	resp, _ := env.do(t, http.MethodGet, "/admin/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/admin/stats", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data := env.do(t, http.MethodGet, "/admin/stats", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, data)
	assert.Equal(t, "stub", body["backend"])
	storageStats := body["storage"].(map[string]any)
	assert.InDelta(t, 2, storageStats["messages"], 0.0001)

	resp, data = env.do(t, http.MethodGet, "/admin/sessions?limit=5", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decodeBody(t, data)["sessions"].([]any)
	assert.Len(t, sessions, 1)

	resp, _ = env.do(t, http.MethodGet, "/admin/sessions?limit=x", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_TOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "rigrun-chat", AccountName: "admin"})
	require.NoError(t, err)

	env := newTestEnv(t, nil, func(c *Config, _ *session.Config) {
		c.Auth = AuthConfig{BearerToken: "s3cret", TOTPSecret: key.Secret()}
	})

	resp, _ := env.do(t, http.MethodGet, "/admin/stats", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/admin/stats", nil,
		"Authorization", "Bearer s3cret", AdminOTPHeader, "000000x")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	resp, _ = env.do(t, http.MethodGet, "/admin/stats", nil,
		"Authorization", "Bearer s3cret", AdminOTPHeader, code)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetHistoryLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	env.srv.SetHistoryLimit(7)
	assert.Equal(t, 7, env.srv.limit())

	env.srv.SetHistoryLimit(0)
	assert.Equal(t, 7, env.srv.limit())
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
