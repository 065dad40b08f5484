// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns model answer text into HTML fragments that are safe to
// insert into the chat page.
//
// Rendering is a three stage pipeline:
//
//  1. Normalize canonicalizes line endings, list markers and paragraph breaks.
//  2. A markdown Engine (goldmark) renders the normalized text, and an
//     optional Sanitizer (bluemonday) strips executable markup from the result.
//  3. If no engine is configured, or the engine fails, FormatManually renders
//     the normalized text with a line based list state machine instead.
//
// Renderer.Render never returns an error and never panics. Every failure
// degrades to the next safer strategy, ending at escaped plain paragraphs.
//
// # Key Types
//
//   - Renderer: the render facade with an injected Engine and Sanitizer
//   - Engine: markdown engine interface (GoldmarkEngine)
//   - Sanitizer: HTML sanitizer interface (PolicySanitizer)
//   - ListState: open list tracked by the fallback formatter
//   - TerminalRenderer: glamour based renderer for terminal output
//
// # Usage
//
//	r := render.New(
//		render.WithEngine(render.NewGoldmarkEngine(render.DefaultEngineConfig())),
//		render.WithSanitizer(render.NewPolicySanitizer()),
//		render.WithLogger(logger),
//	)
//	fragment := r.Render(answer)
package render
