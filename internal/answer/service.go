// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/rigrun-chat/internal/logging"
	"github.com/jeranaias/rigrun-chat/internal/ollama"
)

// Service wraps a Backend with validation, run IDs and failure handling.
// It is safe for concurrent use.
type Service struct {
	backend Backend
	limits  atomic.Pointer[Limits]
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service. A nil backend makes every answer fail with
// ErrBackendUnavailable.
func NewService(backend Backend, limits Limits, logger *zap.Logger) *Service {
	s := &Service{backend: backend, logger: logging.OrNop(logger), now: time.Now}
	s.limits.Store(&limits)
	return s
}

// Available reports whether a backend is configured.
func (s *Service) Available() bool {
	return s != nil && s.backend != nil
}

// BackendName returns the backend name, or "none".
func (s *Service) BackendName() string {
	if !s.Available() {
		return "none"
	}
	return s.backend.Name()
}

// Ping checks the backend.
func (s *Service) Ping(ctx context.Context) error {
	if !s.Available() {
		return ErrBackendUnavailable
	}
	return s.backend.Ping(ctx)
}

// SetLimits replaces the validation limits.
func (s *Service) SetLimits(l Limits) {
	s.limits.Store(&l)
}

// Limits returns the current validation limits.
func (s *Service) Limits() Limits {
	return *s.limits.Load()
}

// Validate normalizes and checks a question against the current limits.
func (s *Service) Validate(question string) (string, error) {
	return Validate(question, s.Limits())
}

// Answer answers an already validated request. Backend failures are logged
// and returned as the standard error result (Failed reports true), so the
// returned result is never nil unless the error is ErrBackendUnavailable.
func (s *Service) Answer(ctx context.Context, req Request) (*Result, error) {
	if !s.Available() {
		return nil, ErrBackendUnavailable
	}

	start := s.now()
	res, err := s.backend.Answer(ctx, req)
	if err == nil && res == nil {
		err = ErrEmptyAnswer
	}
	if err != nil {
		level, reason := failureLevel(err)
		s.logger.Log(level, "ANSWER_FAILED",
			zap.String("backend", s.backend.Name()),
			zap.String("session_id", req.SessionID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		res = ErrorResult(s.now())
	}

	s.finalize(res, req, s.now().Sub(start))

	if err == nil {
		s.logger.Debug("ANSWER_OK",
			zap.String("run_id", res.RunID()),
			zap.Bool("needs_continuation", res.NeedsContinuation),
			zap.Int("sources", len(res.Sources)),
		)
	}
	return res, nil
}

// finalize stamps the run ID, timestamp, session and processing time
// without overwriting values the backend already set.
func (s *Service) finalize(res *Result, req Request, elapsed time.Duration) {
	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	if res.Sources == nil {
		res.Sources = []Source{}
	}
	setDefault(res.Metadata, MetaRunID, uuid.NewString())
	setDefault(res.Metadata, MetaTimestamp, s.now().Format(time.RFC3339))
	if req.SessionID != "" {
		setDefault(res.Metadata, "session_id", req.SessionID)
	}
	setDefault(res.Metadata, "processing_time", elapsed.Seconds())
}

// failureLevel classifies a backend error for logging. Timeouts and an
// unreachable Ollama are operational conditions, not bugs.
func failureLevel(err error) (zapcore.Level, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return zap.InfoLevel, "canceled"
	case ollama.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return zap.WarnLevel, "timeout"
	case ollama.IsNotRunning(err):
		return zap.WarnLevel, "not_running"
	default:
		return zap.ErrorLevel, "error"
	}
}

func setDefault(m map[string]any, key string, value any) {
	if v, ok := m[key]; !ok || v == nil || v == "" {
		m[key] = value
	}
}
