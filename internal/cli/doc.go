// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-chat command line.
//
// # Commands
//
//   - serve             Start the chat web server
//   - chat              Interactive terminal chat with the same backend
//   - render [file|-]   Render answer markdown (html, fallback, terminal)
//   - history [id]      List, show or export stored conversations
//   - config            init, show, get and path
//   - admin totp        Generate a TOTP secret for the admin endpoints
//   - version           Show version information
//
// # Global Flags
//
//   - --config, -c   Config file (default: ~/.rigrun-chat/config.toml)
//   - --verbose, -v  Debug logging
//
// # Usage
//
//	func main() {
//		cli.Execute()
//	}
package cli
