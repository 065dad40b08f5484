// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a self contained HTML page. Questions
// are escaped; answers go through the renderer.
type HTMLExporter struct {
	options  *Options
	renderer *render.Renderer
}

// NewHTMLExporter creates a new HTML exporter. A nil renderer uses the
// fallback formatter.
func NewHTMLExporter(opts *Options, renderer *render.Renderer) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	if renderer == nil {
		renderer = render.New()
	}
	return &HTMLExporter{options: opts, renderer: renderer}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"id\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(t.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"rigrun-chat\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", t.ExportedAt.Format(time.RFC3339)))
	sb.WriteString(exportCSS)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range t.Messages {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Diekspor dari <strong>rigrun-chat</strong> pada %s</p>\n",
		formatTimestamp(t.ExportedAt)))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html; charset=utf-8"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(t *Transcript) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(t.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Sesi:</strong> %s</span>\n", html.EscapeString(t.SessionID)))
	if started := t.StartedAt(); !started.IsZero() {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Dimulai:</strong> %s</span>\n", formatTimestamp(started)))
	}
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Pesan:</strong> %d</span>\n", len(t.Messages)))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg storage.Message) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", msg.Type))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", roleLabel(msg.Type)))
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.CreatedAt)))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	if msg.Type == storage.TypeHuman {
		sb.WriteString(fmt.Sprintf("<p class=\"pre-wrap\">%s</p>\n", html.EscapeString(msg.Content)))
	} else {
		sb.WriteString(e.renderer.Render(msg.Content))
		sb.WriteString("\n")
	}
	sb.WriteString("                </div>\n")

	if msg.Type == storage.TypeAI && e.options.IncludeMetadata {
		sb.WriteString(e.renderAnswerDetails(msg))
	}

	sb.WriteString("            </div>\n")
	return sb.String()
}

func (e *HTMLExporter) renderAnswerDetails(msg storage.Message) string {
	if msg.Confidence == nil && len(msg.Sources) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("                <div class=\"message-stats\">\n")
	if msg.Confidence != nil {
		sb.WriteString(fmt.Sprintf("                    <span class=\"stat\">Tingkat keyakinan: %.0f%%</span>\n", *msg.Confidence*100))
	}
	for _, s := range msg.Sources {
		sb.WriteString(fmt.Sprintf("                    <span class=\"stat source\">%s</span>\n", html.EscapeString(sourceLabel(s))))
	}
	sb.WriteString("                </div>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const exportCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, Inconsolata, "Fira Code", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89; --border-color: #414868;
            --user-bg: #1f2335; --ai-bg: #24283b; --code-bg: #1a1b26;
            --accent-blue: #7aa2f7; --accent-green: #9ece6a;
        }
        .light-theme {
            --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
            --text-primary: #24292e; --text-muted: #6a737d; --border-color: #e1e4e8;
            --user-bg: #f6f8fa; --ai-bg: #ffffff; --code-bg: #f6f8fa;
            --accent-blue: #0366d6; --accent-green: #22863a;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; }
        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 24px; padding: 20px; border-radius: 8px; border-left: 4px solid transparent; }
        .human-message { background: var(--user-bg); border-left-color: var(--accent-blue); }
        .ai-message { background: var(--ai-bg); border-left-color: var(--accent-green); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 12px; font-size: 14px; }
        .role-label { font-weight: 600; }
        .timestamp { color: var(--text-muted); font-family: var(--font-mono); font-size: 13px; }
        .message-content p { margin-bottom: 12px; }
        .message-content ul, .message-content ol { margin: 12px 0; padding-left: 24px; }
        .message-content pre { background: var(--code-bg); padding: 16px; border-radius: 8px; overflow-x: auto; margin: 12px 0; }
        .message-content code { font-family: var(--font-mono); font-size: 14px; }
        .message-content table { border-collapse: collapse; margin: 12px 0; }
        .message-content th, .message-content td { border: 1px solid var(--border-color); padding: 4px 8px; }
        .pre-wrap { white-space: pre-wrap; }
        .message-stats { margin-top: 12px; padding-top: 12px; border-top: 1px solid var(--border-color); display: flex; flex-wrap: wrap; gap: 16px; font-size: 13px; color: var(--text-muted); }
        .footer { padding: 20px 32px; text-align: center; font-size: 14px; color: var(--text-muted); border-top: 1px solid var(--border-color); }
        @media print { body { padding: 0; } .message { page-break-inside: avoid; } }
    </style>
`
