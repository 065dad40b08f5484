// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used across rigrun-chat.
//
// Log messages use the EVENT_NAME style (SERVER_START, RENDER_FALLBACK,
// RATE_LIMIT_EXCEEDED) with structured fields carrying the details.
//
// # Key Types
//
//   - Config: level and output format
//   - Logger construction via New, with an AtomicLevel for live changes
//
// # Usage
//
//	logger, level, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	level.SetLevel(zapcore.DebugLevel)
package logging
