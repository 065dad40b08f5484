// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// TYPES
// =============================================================================

// MessageType distinguishes the two sides of a conversation. The values
// match the "type" field of the chat history API.
type MessageType string

const (
	TypeHuman MessageType = "human"
	TypeAI    MessageType = "ai"
)

// Source is a document reference attached to an AI answer.
type Source struct {
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
	Page   int    `json:"page,omitempty"`
}

// Message is one persisted chat message.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`

	// AI answers only.
	RunID             string   `json:"run_id,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	NeedsContinuation bool     `json:"needs_continuation,omitempty"`
	Sources           []Source `json:"sources,omitempty"`
}

// Feedback is a user rating of one answer run.
type Feedback struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary describes one stored session.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	MessageCount  int       `json:"message_count"`
	FirstQuestion string    `json:"first_question"`
	LastActivity  time.Time `json:"last_activity"`
}

// Stats holds aggregate counters.
type Stats struct {
	Sessions      int64         `json:"sessions"`
	Messages      int64         `json:"messages"`
	Questions     int64         `json:"questions"`
	Answers       int64         `json:"answers"`
	Continuations int64         `json:"continuations"`
	Feedback      int64         `json:"feedback"`
	AverageRating float64       `json:"average_rating"`
	Ratings       map[int]int64 `json:"ratings"`
}

// =============================================================================
// STORE
// =============================================================================

// Store persists chat messages and feedback in SQLite. It is safe for
// concurrent use; writes are serialized on a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// MESSAGES
// =============================================================================

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendMessage stores m. Empty ID and zero CreatedAt are filled in and
// written back to m.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	return s.insertMessage(ctx, s.db, m)
}

// AppendTurn stores a question and its answer in one transaction, so a
// session never holds a question without its reply. The session ID and
// message types are set on both messages.
func (s *Store) AppendTurn(ctx context.Context, sessionID, question string, reply *Message) error {
	if reply == nil {
		return fmt.Errorf("%w: reply is required", ErrInvalidMessage)
	}
	human := &Message{SessionID: sessionID, Type: TypeHuman, Content: question}
	reply.SessionID = sessionID
	reply.Type = TypeAI

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.insertMessage(ctx, tx, human); err != nil {
		return err
	}
	if err := s.insertMessage(ctx, tx, reply); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func (s *Store) insertMessage(ctx context.Context, db execer, m *Message) error {
	if m.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidMessage)
	}
	if m.Type != TypeHuman && m.Type != TypeAI {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	sources := m.Sources
	if sources == nil {
		sources = []Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	var confidence sql.NullFloat64
	if m.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, type, content, run_id, confidence, needs_continuation, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Type), m.Content, m.RunID, confidence,
		boolToInt(m.NeedsContinuation), string(sourcesJSON), m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// History returns the most recent limit messages of a session, oldest
// first. An unknown session yields an empty slice.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, content, run_id, confidence, needs_continuation, sources, created_at
		FROM (
			SELECT * FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		)
		ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return messages, nil
}

// MessageByRunID returns the AI answer produced by runID.
func (s *Store) MessageByRunID(ctx context.Context, runID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, type, content, run_id, confidence, needs_continuation, sources, created_at
		FROM messages WHERE run_id = ? AND run_id != '' LIMIT 1`, runID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ClearSession deletes every message of a session and returns how many
// were removed. Feedback rows are kept for statistics.
func (s *Store) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear session: %w", err)
	}
	return n, nil
}

// Sessions lists stored sessions, most recently active first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.session_id, COUNT(*), MAX(m.created_at),
		       COALESCE((SELECT content FROM messages f
		                 WHERE f.session_id = m.session_id AND f.type = 'human'
		                 ORDER BY f.seq ASC LIMIT 1), '')
		FROM messages m
		GROUP BY m.session_id
		ORDER BY MAX(m.seq) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum  SessionSummary
			last int64
		)
		if err := rows.Scan(&sum.SessionID, &sum.MessageCount, &last, &sum.FirstQuestion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.LastActivity = time.UnixMilli(last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (Message, error) {
	var (
		m            Message
		typ          string
		confidence   sql.NullFloat64
		continuation int
		sourcesJSON  string
		created      int64
	)
	err := r.Scan(&m.ID, &m.SessionID, &typ, &m.Content, &m.RunID, &confidence,
		&continuation, &sourcesJSON, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("scan message: %w", err)
	}

	m.Type = MessageType(typ)
	m.CreatedAt = time.UnixMilli(created)
	m.NeedsContinuation = continuation != 0
	if confidence.Valid {
		c := confidence.Float64
		m.Confidence = &c
	}
	if sourcesJSON != "" && sourcesJSON != "[]" {
		if err := json.Unmarshal([]byte(sourcesJSON), &m.Sources); err != nil {
			return m, fmt.Errorf("decode sources: %w", err)
		}
	}
	return m, nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SaveFeedback records a rating for an answer run. The rating must be
// between 1 and 5 and the run must exist.
func (s *Store) SaveFeedback(ctx context.Context, f Feedback) error {
	f.RunID = strings.TrimSpace(f.RunID)
	if f.RunID == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidFeedback)
	}
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrInvalidFeedback, f.Rating)
	}
	if _, err := s.MessageByRunID(ctx, f.RunID); err != nil {
		return err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (run_id, session_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.RunID, f.SessionID, f.Rating, f.Comment, f.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// =============================================================================
// STATS
// =============================================================================

// Stats returns aggregate counters over all stored data.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Ratings: map[int]int64{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT session_id),
		       COUNT(*),
		       COALESCE(SUM(type = 'human'), 0),
		       COALESCE(SUM(type = 'ai'), 0),
		       COALESCE(SUM(needs_continuation), 0)
		FROM messages`).Scan(&st.Sessions, &st.Messages, &st.Questions, &st.Answers, &st.Continuations)
	if err != nil {
		return nil, fmt.Errorf("query message stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rating, COUNT(*) FROM feedback GROUP BY rating`)
	if err != nil {
		return nil, fmt.Errorf("query feedback stats: %w", err)
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var rating int
		var count int64
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("scan feedback stats: %w", err)
		}
		st.Ratings[rating] = count
		st.Feedback += count
		total += int64(rating) * count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if st.Feedback > 0 {
		st.AverageRating = float64(total) / float64(st.Feedback)
	}
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
