// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"context"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// Conversation roles, matching the chat history API.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Metadata keys set on every Result.
const (
	MetaRunID     = "run_id"
	MetaTimestamp = "timestamp"
	MetaError     = "error"
)

// ContinuationPrompt is what the browser sends when the user asks the
// assistant to continue a truncated answer.
const ContinuationPrompt = "lanjutkan"

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    string `json:"type"`
	Content string `json:"content"`
}

// Request is a question to answer.
type Request struct {
	SessionID string
	Question  string
	History   []Turn
}

// Source is a document the answer was grounded on.
type Source struct {
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
	Page   int    `json:"page,omitempty"`
}

// Label is the display name of the source (title, else source path).
func (s Source) Label() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Source
}

// Result is a complete answer.
type Result struct {
	Answer            string         `json:"answer"`
	Sources           []Source       `json:"sources"`
	Confidence        *float64       `json:"confidence"`
	NeedsContinuation bool           `json:"needs_continuation"`
	Metadata          map[string]any `json:"metadata"`
}

// RunID returns the run ID stamped on the result.
func (r *Result) RunID() string {
	id, _ := r.Metadata[MetaRunID].(string)
	return id
}

// Failed reports whether the result is the standard error result.
func (r *Result) Failed() bool {
	failed, _ := r.Metadata[MetaError].(bool)
	return failed
}

// StoredReply converts the result to the AI message persisted for it. The
// session and type are set by storage.Store.AppendTurn.
func (r *Result) StoredReply() *storage.Message {
	sources := make([]storage.Source, 0, len(r.Sources))
	for _, src := range r.Sources {
		sources = append(sources, storage.Source{Title: src.Title, Source: src.Source, Page: src.Page})
	}
	return &storage.Message{
		Content:           r.Answer,
		RunID:             r.RunID(),
		Confidence:        r.Confidence,
		NeedsContinuation: r.NeedsContinuation,
		Sources:           sources,
	}
}

// Backend produces answers. Implementations must be safe for concurrent use.
type Backend interface {
	// Answer answers req. Errors are converted to the error result by Service.
	Answer(ctx context.Context, req Request) (*Result, error)

	// Name identifies the backend in logs and stats.
	Name() string

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// ErrorAnswer is the user facing text of a failed answer.
const ErrorAnswer = "Maaf, terjadi kesalahan dalam memproses pertanyaan Anda. Silakan coba lagi nanti."

// ErrorResult returns the standard result for a failed answer.
func ErrorResult(now time.Time) *Result {
	zero := 0.0
	return &Result{
		Answer:     ErrorAnswer,
		Sources:    []Source{},
		Confidence: &zero,
		Metadata: map[string]any{
			MetaError:     true,
			MetaTimestamp: now.Format(time.RFC3339),
		},
	}
}
