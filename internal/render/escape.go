// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "html"

// Escape replaces the five HTML significant characters & < > " ' with
// entities. Callers escape each raw segment exactly once.
func Escape(s string) string {
	return html.EscapeString(s)
}
