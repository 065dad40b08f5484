// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/export"
	"github.com/jeranaias/rigrun-chat/internal/metrics"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/view"
)

// User facing error messages. The chat page shows data.error verbatim.
const (
	msgUnavailable     = "Service tidak tersedia saat ini"
	msgBadRequest      = "Format permintaan tidak valid"
	msgTooManyRequests = "Silakan tunggu sebentar sebelum mengirim pertanyaan lagi"
	msgChatFailed      = "Terjadi kesalahan dalam memproses pertanyaan"
	msgHistoryFailed   = "Gagal mengambil riwayat percakapan"
	msgClearFailed     = "Gagal membersihkan percakapan"
	msgStatsFailed     = "Gagal mengambil statistik"
	msgFeedbackFailed  = "Gagal menyimpan feedback"
	msgRunIDRequired   = "run_id diperlukan"
	msgRatingInvalid   = "Rating harus antara 1 dan 5"
	msgRunNotFound     = "Jawaban tidak ditemukan"
	msgNothingToExport = "Tidak ada percakapan untuk diekspor"
	msgPageFailed      = "Gagal memuat halaman"
	msgInternal        = "Internal Server Error"
)

// maxExportMessages bounds a single transcript export.
const maxExportMessages = 10000

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	answer.Result
	SessionID   string `json:"session_id"`
	AnswerHTML  string `json:"answer_html"`
	MessageHTML string `json:"message_html"`
}

// HistoryEntry is one message of GET /chat/history.
type HistoryEntry struct {
	Type              string           `json:"type"`
	Content           string           `json:"content"`
	ContentHTML       string           `json:"content_html,omitempty"`
	RunID             string           `json:"run_id,omitempty"`
	Confidence        *float64         `json:"confidence,omitempty"`
	NeedsContinuation bool             `json:"needs_continuation,omitempty"`
	Sources           []storage.Source `json:"sources,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	RunID   string `json:"run_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Text string `json:"text"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Backend       string `json:"backend"`
	BackendStatus string `json:"backend_status"`
	Storage       string `json:"storage"`
	Sessions      int    `json:"sessions"`
	Uptime        string `json:"uptime"`
}

// ============================================================================
// PAGE
// ============================================================================

// handleIndex serves the chat page with the session's history.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, isNew := s.deps.Sessions.Session(w, r)

	var messages []view.Message
	if !isNew {
		stored, err := s.deps.Store.History(r.Context(), id, s.limit())
		if err != nil {
			s.logger.Error("HISTORY_LOAD_FAILED", zap.String("session_id", id), zap.Error(err))
		}
		for _, m := range stored {
			messages = append(messages, view.FromStored(m))
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.deps.Views.RenderPage(w, view.Page{SessionID: id, Messages: messages}); err != nil {
		s.logger.Error("PAGE_RENDER_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgPageFailed)
	}
}

// ============================================================================
// CHAT
// ============================================================================

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	m := s.deps.Metrics
	if !s.deps.Answers.Available() {
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}

	var req ChatRequest
	if !s.decode(w, r, &req) {
		return
	}

	question, err := s.deps.Answers.Validate(req.Question)
	if err != nil {
		m.ObserveQuestion(metrics.OutcomeRejected)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID, _ := s.deps.Sessions.Session(w, r)
	if !s.deps.Sessions.Allow(sessionID) {
		m.ObserveQuestion(metrics.OutcomeRateLimited)
		m.ObserveRateLimited("session")
		w.Header().Set("Retry-After", retryAfterSeconds(time.Second))
		writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
		return
	}

	ctx := r.Context()
	history, err := s.deps.Store.History(ctx, sessionID, s.limit())
	if err != nil {
		s.logger.Error("HISTORY_LOAD_FAILED", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	start := time.Now()
	res, err := s.deps.Answers.Answer(ctx, answer.Request{
		SessionID: sessionID,
		Question:  question,
		History:   toTurns(history),
	})
	if err != nil {
		s.logger.Error("ANSWER_UNAVAILABLE", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}
	m.ObserveAnswer(time.Since(start), res.NeedsContinuation)

	if res.Failed() {
		m.ObserveQuestion(metrics.OutcomeFailed)
	} else {
		m.ObserveQuestion(metrics.OutcomeAnswered)
		if err := s.deps.Store.AppendTurn(ctx, sessionID, question, res.StoredReply()); err != nil {
			s.logger.Error("MESSAGE_SAVE_FAILED", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgChatFailed)
			return
		}
	}

	msg := view.AIMessage(res)
	if res.Failed() {
		msg = view.ErrorMessage(res.Answer)
	}
	fragment, err := s.deps.Views.Fragment(msg)
	if err != nil {
		s.logger.Error("FRAGMENT_RENDER_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgChatFailed)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Result:      *res,
		SessionID:   sessionID,
		AnswerHTML:  s.deps.Views.Markdown(res.Answer),
		MessageHTML: fragment,
	})
}

func toTurns(messages []storage.Message) []answer.Turn {
	turns := make([]answer.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, answer.Turn{Role: string(m.Type), Content: m.Content})
	}
	return turns
}

// handleHistory handles GET /chat/history. A request without a session
// gets an empty history and no cookie.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := []HistoryEntry{}

	if id, ok := s.deps.Sessions.Lookup(r); ok {
		stored, err := s.deps.Store.History(r.Context(), id, s.limit())
		if err != nil {
			s.logger.Error("HISTORY_LOAD_FAILED", zap.String("session_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgHistoryFailed)
			return
		}
		for _, m := range stored {
			e := HistoryEntry{
				Type:      string(m.Type),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			}
			if m.Type == storage.TypeAI {
				e.ContentHTML = s.deps.Views.Markdown(m.Content)
				e.RunID = m.RunID
				e.Confidence = m.Confidence
				e.NeedsContinuation = m.NeedsContinuation
				e.Sources = m.Sources
			}
			entries = append(entries, e)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// handleClear handles POST /chat/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.deps.Sessions.Lookup(r); ok {
		removed, err := s.deps.Store.ClearSession(r.Context(), id)
		if err != nil {
			s.logger.Error("SESSION_CLEAR_FAILED", zap.String("session_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgClearFailed)
			return
		}
		s.deps.Sessions.Remove(id)
		s.logger.Info("SESSION_CLEARED", zap.String("session_id", id), zap.Int64("messages", removed))
	}
	s.deps.Sessions.Clear(w)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Percakapan berhasil dibersihkan",
	})
}

// handleExport handles GET /chat/export?format=md|html|json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deps.Sessions.Lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNothingToExport)
		return
	}

	exp, err := export.ForFormat(r.URL.Query().Get("format"), export.DefaultOptions(), s.deps.Renderer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.deps.Store.History(r.Context(), id, maxExportMessages)
	if err != nil {
		s.logger.Error("HISTORY_LOAD_FAILED", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgHistoryFailed)
		return
	}
	if len(stored) == 0 {
		writeError(w, http.StatusNotFound, msgNothingToExport)
		return
	}

	transcript := export.NewTranscript(id, stored)
	data, err := exp.Export(transcript)
	if err != nil {
		s.logger.Error("EXPORT_FAILED", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(transcript, exp)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// ============================================================================
// FEEDBACK / RENDER
// ============================================================================

// handleFeedback handles POST /feedback.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, msgRunIDRequired)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, msgRatingInvalid)
		return
	}

	sessionID, _ := s.deps.Sessions.Lookup(r)
	err := s.deps.Store.SaveFeedback(r.Context(), storage.Feedback{
		RunID:     req.RunID,
		SessionID: sessionID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgRunNotFound)
		return
	case errors.Is(err, storage.ErrInvalidFeedback):
		writeError(w, http.StatusBadRequest, msgRatingInvalid)
		return
	case err != nil:
		s.logger.Error("FEEDBACK_SAVE_FAILED", zap.String("run_id", req.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFeedbackFailed)
		return
	}

	s.deps.Metrics.ObserveFeedback(req.Rating)
	s.logger.Info("FEEDBACK_RECEIVED", zap.String("run_id", req.RunID), zap.Int("rating", req.Rating))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleRender handles POST /render.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": s.deps.Views.Markdown(req.Text)})
}

// ============================================================================
// HEALTH / ADMIN
// ============================================================================

// handleHealth handles GET /health. A failing backend degrades the status;
// a failing store fails it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		Backend:       s.deps.Answers.BackendName(),
		BackendStatus: "ok",
		Storage:       "ok",
		Sessions:      s.deps.Sessions.Count(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
	}

	if err := s.deps.Answers.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.BackendStatus = "unavailable"
		if errors.Is(err, answer.ErrBackendUnavailable) {
			health.BackendStatus = "not_configured"
		}
	}

	status := http.StatusOK
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Error("STORAGE_UNHEALTHY", zap.Error(err))
		health.Status = "unavailable"
		health.Storage = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

// handleAdminStats handles GET /admin/stats.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.logger.Error("STATS_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgStatsFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"storage":         stats,
		"active_sessions": s.deps.Sessions.Count(),
		"backend":         s.deps.Answers.BackendName(),
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
		"version":         Version,
	})
}

// handleAdminSessions handles GET /admin/sessions?limit=N.
func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, msgBadRequest)
			return
		}
		limit = n
	}

	sessions, err := s.deps.Store.Sessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("SESSIONS_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgStatsFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body bounded by MaxBodyBytes. On failure it writes
// the error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Permintaan terlalu besar")
			return false
		}
		s.logger.Debug("INVALID_REQUEST_BODY", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}, the shape the chat page reads.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
