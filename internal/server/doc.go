// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the chat HTTP server.
//
// The server serves the chat page, answers questions through an
// answer.Service, and keeps each browser's conversation in SQLite keyed by
// a signed session cookie.
//
// # Endpoints
//
//   - GET  /, /chat         - Chat page with the session's history
//   - POST /chat            - Ask a question
//   - GET  /chat/history    - Conversation of the current session
//   - POST /chat/clear      - Delete the conversation and the session
//   - GET  /chat/export     - Download the conversation (md, html, json)
//   - POST /feedback        - Rate an answer by run_id
//   - POST /render          - Render markdown to sanitized HTML
//   - GET  /health          - Health check
//   - GET  /metrics         - Prometheus metrics
//   - GET  /admin/stats     - Usage statistics (bearer token, optional TOTP)
//   - GET  /admin/sessions  - Recent sessions (bearer token, optional TOTP)
//
// # Security Features
//
//   - HMAC signed, HttpOnly session cookies
//   - Per-IP and per-session rate limiting
//   - Admin endpoints disabled unless a token is configured
//   - Content-Security-Policy and other security headers
//   - Panic recovery with structured logging
//
// # Key Types
//
//   - Server: HTTP server with routes and middleware
//   - Config: Listen address, timeouts, limits and admin auth
//   - Deps: Answer service, store, sessions, views and metrics
//
// # Usage
//
//	srv, err := server.New(server.ConfigFrom(cfg), server.Deps{
//		Answers:  answers,
//		Store:    store,
//		Sessions: sessions,
//		Views:    views,
//	})
//	if err != nil {
//		return err
//	}
//	go srv.ListenAndServe(ctx)
//	<-ctx.Done()
//	srv.Shutdown(context.Background())
package server
