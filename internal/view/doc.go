// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package view renders the chat page and chat message fragments.
//
// Templates and static assets are embedded. User and error messages are
// always escaped; AI answers go through the render package, so the only
// unescaped HTML a view emits is renderer output.
//
// # Key Types
//
//   - Views: parsed templates plus the answer renderer
//   - Message: one chat turn ready for display
//   - Page: data for the full chat page
//
// # Usage
//
//	v, err := view.New(renderer, view.Options{HighlightStyle: "github"})
//	frag, err := v.Fragment(view.AIMessage(result))
//	err = v.RenderPage(w, view.Page{SessionID: id, Messages: msgs})
package view
