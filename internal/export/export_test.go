// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

func sampleTranscript() *Transcript {
	conf := 0.9
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t := NewTranscript("0123456789abcdef", []storage.Message{
		{Type: storage.TypeHuman, Content: "Apa syarat: <IPK> minimal?", CreatedAt: base},
		{
			Type:       storage.TypeAI,
			Content:    "**Syarat**\n1. IPK 3.0\n2. TOEFL",
			CreatedAt:  base.Add(time.Second),
			RunID:      "run-1",
			Confidence: &conf,
			Sources:    []storage.Source{{Title: "Panduan [2025]", Page: 12}},
		},
	})
	t.ExportedAt = base.Add(time.Hour)
	return t
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestNewTranscript_Title(t *testing.T) {
	tr := NewTranscript("s", []storage.Message{{Type: storage.TypeHuman, Content: "  halo\n  dunia "}})
	assert.Equal(t, "halo dunia", tr.Title)

	empty := NewTranscript("s", nil)
	assert.Equal(t, "Percakapan", empty.Title)
	assert.True(t, empty.StartedAt().IsZero())
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"", ".md"},
		{"md", ".md"},
		{"Markdown", ".md"},
		{"html", ".html"},
		{"json", ".json"},
	}

	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil, nil)
		require.NoError(t, err, tt.format)
		if got := exp.FileExtension(); got != tt.ext {
			t.Errorf("ForFormat(%q).FileExtension() = %q, want %q", tt.format, got, tt.ext)
		}
	}

	_, err := ForFormat("pdf", nil, nil)
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	got := Filename(sampleTranscript(), NewJSONExporter(nil))
	assert.Equal(t, "conversation_01234567_20250301_110000.json", got)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "conversation"},
		{"a/b\\c:d", "a-b-c-d"},
		{"with space", "with_space"},
		{"ctl\x01", "ctl-"},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// =============================================================================
// EXPORTER TESTS
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	data, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "---\n"))
	parts := strings.SplitN(out, "---\n", 3)
	require.Len(t, parts, 3)

	var fm frontmatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "Apa syarat: <IPK> minimal?", fm.Title)
	assert.Equal(t, "0123456789abcdef", fm.Session)
	assert.Equal(t, 2, fm.Messages)
	assert.Equal(t, "rigrun-chat", fm.Generator)

	assert.Contains(t, out, "### Pengguna <sub>10:00:00</sub>")
	assert.Contains(t, out, "### Asisten")
	assert.Contains(t, out, "**Syarat**\n1. IPK 3.0")
	assert.Contains(t, out, "Tingkat keyakinan: 90%")
	assert.Contains(t, out, `- Panduan \[2025\] (hal. 12)`)
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := &Options{}
	data, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "# "))
	assert.NotContains(t, out, "Tingkat keyakinan")
	assert.NotContains(t, out, "<sub>10:00:00</sub>")
}

func TestHTMLExporter(t *testing.T) {
	data, err := NewHTMLExporter(nil, render.NewDefault(nil)).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "light-theme")
	assert.Contains(t, out, "Apa syarat: &lt;IPK&gt; minimal?")
	assert.NotContains(t, out, "<IPK>")
	assert.Contains(t, out, "<strong>Syarat</strong>")
	assert.Contains(t, out, "<ol>")
	assert.Contains(t, out, "Tingkat keyakinan: 90%")
	assert.Contains(t, out, "human-message")
	assert.Contains(t, out, "ai-message")
}

func TestHTMLExporter_FallbackRenderer(t *testing.T) {
	data, err := NewHTMLExporter(&Options{Theme: "dark"}, nil).Export(sampleTranscript())
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "dark-theme")
	assert.Contains(t, out, "<li>IPK 3.0</li>")
}

func TestJSONExporter(t *testing.T) {
	data, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var decoded struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "0123456789abcdef", decoded.SessionID)
	assert.Len(t, decoded.Messages, 2)
}

func TestExporters_EmptyTranscript(t *testing.T) {
	empty := NewTranscript("s", nil)

	_, err := NewMarkdownExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = NewHTMLExporter(nil, nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = NewJSONExporter(nil).Export(empty)
	assert.NoError(t, err)
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	path, err := ExportToFile(sampleTranscript(), NewMarkdownExporter(nil), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Apa syarat")
}
