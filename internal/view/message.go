// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package view

import (
	"encoding/json"
	"math"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// Message kinds.
const (
	KindUser  = "user"
	KindAI    = "ai"
	KindError = "error"
)

// Message is one chat turn ready for display.
type Message struct {
	Kind              string
	Content           string
	Sources           []answer.Source
	Confidence        *float64
	NeedsContinuation bool
	Metadata          map[string]any
	RunID             string
}

// UserMessage returns a user turn.
func UserMessage(content string) Message {
	return Message{Kind: KindUser, Content: content}
}

// ErrorMessage returns an error turn.
func ErrorMessage(content string) Message {
	return Message{Kind: KindError, Content: content}
}

// AIMessage returns the turn for an answer result.
func AIMessage(res *answer.Result) Message {
	return Message{
		Kind:              KindAI,
		Content:           res.Answer,
		Sources:           res.Sources,
		Confidence:        res.Confidence,
		NeedsContinuation: res.NeedsContinuation,
		Metadata:          res.Metadata,
		RunID:             res.RunID(),
	}
}

// FromStored converts a stored message. Stored answers keep their
// annotations but not the backend metadata.
func FromStored(m storage.Message) Message {
	if m.Type == storage.TypeHuman {
		return UserMessage(m.Content)
	}
	msg := Message{
		Kind:              KindAI,
		Content:           m.Content,
		Confidence:        m.Confidence,
		NeedsContinuation: m.NeedsContinuation,
		RunID:             m.RunID,
	}
	for _, s := range m.Sources {
		msg.Sources = append(msg.Sources, answer.Source{Title: s.Title, Source: s.Source, Page: s.Page})
	}
	return msg
}

// =============================================================================
// CONFIDENCE BADGE
// =============================================================================

// Badge levels, also used as CSS class suffixes.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// Badge is a rendered confidence indicator.
type Badge struct {
	Percent int
	Level   string
}

// ConfidencePercent converts a 0..1 confidence to a rounded percentage.
func ConfidencePercent(c float64) int {
	return int(math.Round(c * 100))
}

// ConfidenceBadge classifies a confidence score: high at 80% and above,
// medium at 60% and above, low otherwise.
func ConfidenceBadge(c float64) Badge {
	pct := ConfidencePercent(c)
	switch {
	case pct >= 80:
		return Badge{Percent: pct, Level: LevelHigh}
	case pct >= 60:
		return Badge{Percent: pct, Level: LevelMedium}
	default:
		return Badge{Percent: pct, Level: LevelLow}
	}
}

// Badge returns the confidence badge, or nil when the message has no score.
func (m Message) Badge() *Badge {
	if m.Confidence == nil {
		return nil
	}
	b := ConfidenceBadge(*m.Confidence)
	return &b
}

// MetadataJSON returns the metadata indented for the debug block, or "".
func (m Message) MetadataJSON() string {
	if len(m.Metadata) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(m.Metadata, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
