// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/util"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// ErrEmptyTranscript is returned when a transcript has no messages.
var ErrEmptyTranscript = errors.New("conversation has no messages")

// Transcript is the conversation of one session.
type Transcript struct {
	SessionID  string            `json:"session_id"`
	Title      string            `json:"title"`
	ExportedAt time.Time         `json:"exported_at"`
	Messages   []storage.Message `json:"messages"`
}

// NewTranscript builds a transcript. The title is the first question.
func NewTranscript(sessionID string, messages []storage.Message) *Transcript {
	t := &Transcript{
		SessionID:  sessionID,
		ExportedAt: time.Now(),
		Messages:   messages,
	}
	for _, m := range messages {
		if m.Type == storage.TypeHuman {
			t.Title = util.TruncateRunes(util.OneLine(m.Content), 60)
			break
		}
	}
	if t.Title == "" {
		t.Title = "Percakapan"
	}
	return t
}

// StartedAt returns the time of the first message.
func (t *Transcript) StartedAt() time.Time {
	if len(t.Messages) == 0 {
		return time.Time{}
	}
	return t.Messages[0].CreatedAt
}

func (t *Transcript) validate() error {
	if t == nil {
		return errors.New("conversation is nil")
	}
	if len(t.Messages) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to a file format.
type Exporter interface {
	// Export converts a transcript to the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension (e.g. ".md").
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata includes the frontmatter / header and answer details.
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "light",
	}
}

// Formats lists the accepted format names.
var Formats = []string{"md", "markdown", "html", "json"}

// ForFormat returns the exporter for a format name. renderer is used by
// the HTML exporter; nil means the fallback formatter.
func ForFormat(format string, opts *Options, renderer *render.Renderer) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts, renderer), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Filename returns the download file name of an export.
func Filename(t *Transcript, e Exporter) string {
	id := t.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(id),
		t.ExportedAt.Format("20060102_150405"),
		e.FileExtension(),
	)
}

// ExportToFile exports a transcript into dir and returns the file path.
func ExportToFile(t *Transcript, e Exporter, dir string) (string, error) {
	content, err := e.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, Filename(t, e))
	if err := util.AtomicWriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func roleLabel(t storage.MessageType) string {
	if t == storage.TypeHuman {
		return "Pengguna"
	}
	return "Asisten"
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

func sourceLabel(s storage.Source) string {
	label := s.Title
	if label == "" {
		label = s.Source
	}
	if s.Page > 0 {
		label += fmt.Sprintf(" (hal. %d)", s.Page)
	}
	return label
}
