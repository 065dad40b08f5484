// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Schema is the database schema. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
    seq                INTEGER PRIMARY KEY AUTOINCREMENT,
    id                 TEXT NOT NULL UNIQUE,
    session_id         TEXT NOT NULL,
    type               TEXT NOT NULL CHECK (type IN ('human', 'ai')),
    content            TEXT NOT NULL,
    run_id             TEXT NOT NULL DEFAULT '',
    confidence         REAL,
    needs_continuation INTEGER NOT NULL DEFAULT 0,
    sources            TEXT NOT NULL DEFAULT '[]',
    created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id) WHERE run_id != '';

CREATE TABLE IF NOT EXISTS feedback (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
    comment    TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_run ON feedback(run_id);
`
