// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigrun-chat.
//
// Configuration is a single TOML file with sensible defaults, environment
// variable overrides, validation, and optional hot reload.
//
// # Key Types
//
//   - Config: main configuration structure
//   - ServerConfig: listen address, timeouts, admin auth
//   - ChatConfig: question limits and per-session rate limit
//   - RenderConfig: markdown engine selection and code highlighting
//   - BackendConfig: answer backend (ollama, http, none)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGRUN_CHAT_*)
//   - ~/.rigrun-chat/config.toml (or the --config path)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//
//	stop, err := config.Watch(ctx, path, logger, func(c *config.Config) {
//	    level.SetLevel(...)
//	})
package config
