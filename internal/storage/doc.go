// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence for rigrun-chat.
//
// Messages, answer feedback and usage statistics live in a single SQLite
// database (pure Go driver, WAL mode, one writer connection).
//
// # Key Types
//
//   - Store: the database handle
//   - Message: one human question or AI answer in a session
//   - Feedback: a 1..5 rating attached to an answer run
//   - Stats: aggregate counters for the admin endpoint
//
// # Usage
//
//	store, err := storage.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.AppendMessage(ctx, &storage.Message{
//	    SessionID: id,
//	    Type:      storage.TypeHuman,
//	    Content:   question,
//	})
//	history, err := store.History(ctx, id, 50)
package storage
