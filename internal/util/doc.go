// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by rigrun-chat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync (config files)
//   - TruncateRunes: UTF-8 safe truncation with ellipsis (log previews)
//   - TruncateWidth: display-width truncation for terminal tables
//   - OneLine: collapses whitespace so a message fits on one row
//
// # Usage
//
//	preview := util.TruncateRunes(question, 80)
//	row := util.TruncateWidth(util.OneLine(answer), 60)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
