// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks browser chat sessions.
//
// A session is identified by a random UUID carried in a signed cookie
// ("<uuid>.<mac>", MAC = keyed BLAKE2b-256). The Manager records activity,
// expires idle sessions and enforces the minimum interval between two
// questions of the same session.
//
// # Key Types
//
//   - Manager: session registry, cookie signing and per-session rate limits
//   - Config: cookie name, secret, idle timeout and question interval
//   - Status: snapshot of one session for diagnostics
//
// # Usage
//
//	mgr, err := session.NewManager(session.Config{
//	    Secret:      []byte(cfg.Session.Secret),
//	    IdleTimeout: time.Hour,
//	    MinInterval: 2 * time.Second,
//	})
//
//	id, _ := mgr.Session(w, r)
//	if !mgr.Allow(id) {
//	    // 429
//	}
package session
