// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export provides conversation export for rigrun-chat.
//
// A Transcript (one session's stored messages) can be exported to
// Markdown, standalone HTML or JSON. The HTML exporter renders answers
// with the same renderer as the chat page.
//
// # Key Types
//
//   - Transcript: the messages of one session
//   - Exporter: the export interface
//   - Options: export configuration
//
// # Supported Formats
//
//   - JSON: machine readable, full message data
//   - Markdown: YAML frontmatter plus the conversation
//   - HTML: styled, self contained page
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions(), renderer)
//	data, err := exp.Export(transcript)
//	name := export.Filename(transcript, exp)
package export
