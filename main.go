// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// rigrun-chat serves a document Q&A chat over HTTP.
package main

import "github.com/jeranaias/rigrun-chat/internal/cli"

func main() {
	cli.Execute()
}
