// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

// ErrExpired is returned by Touch for a session idle longer than the timeout.
var ErrExpired = errors.New("session expired")

// =============================================================================
// CONFIG
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	// CookieName is the session cookie name (default: rigrun_chat_session).
	CookieName string

	// Secret keys the cookie MAC. When empty a random key is generated, so
	// cookies do not survive a restart.
	Secret []byte

	// IdleTimeout expires sessions without activity (default: 1 hour).
	IdleTimeout time.Duration

	// MinInterval is the minimum time between two questions of one session
	// (default: 2 seconds, 0 disables the limit).
	MinInterval time.Duration

	// Secure sets the cookie Secure attribute.
	Secure bool
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		CookieName:  "rigrun_chat_session",
		IdleTimeout: time.Hour,
		MinInterval: 2 * time.Second,
	}
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

type entry struct {
	created      time.Time
	lastActivity time.Time
	limiter      *rate.Limiter
}

// Manager tracks sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	key         []byte
	cookieName  string
	idleTimeout time.Duration
	minInterval time.Duration
	secure      bool

	now func() time.Time
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	defaults := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = defaults.CookieName
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}

	key := cfg.Secret
	switch {
	case len(key) == 0:
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	case len(key) > blake2b.Size:
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	return &Manager{
		sessions:    make(map[string]*entry),
		key:         key,
		cookieName:  cfg.CookieName,
		idleTimeout: cfg.IdleTimeout,
		minInterval: cfg.MinInterval,
		secure:      cfg.Secure,
		now:         time.Now,
	}, nil
}

// CookieName returns the session cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// SetMinInterval changes the question interval for new and existing
// sessions (used on config reload).
func (m *Manager) SetMinInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minInterval = d
	for _, e := range m.sessions {
		e.limiter.SetLimitAt(m.now(), limitFor(d))
	}
}

// Issue creates and registers a new session ID.
func (m *Manager) Issue() string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(id)
	return id
}

// Touch records activity for id. An unknown ID (for example after a
// restart) is registered; a tracked session idle past the timeout is
// removed and ErrExpired returned.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.sessions[id]
	if !ok {
		m.register(id)
		return nil
	}
	if now.Sub(e.lastActivity) > m.idleTimeout {
		delete(m.sessions, id)
		return ErrExpired
	}
	e.lastActivity = now
	return nil
}

// Allow reports whether session id may ask a question now, consuming the
// allowance when it does. The first question of a session is always allowed.
func (m *Manager) Allow(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		e = m.register(id)
	}
	return e.limiter.AllowN(m.now(), 1)
}

// Remove forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep removes sessions idle past the timeout and returns how many were
// removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastActivity) > m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Status is a snapshot of one session.
type Status struct {
	ID           string        `json:"id"`
	Created      time.Time     `json:"created"`
	LastActivity time.Time     `json:"last_activity"`
	Idle         time.Duration `json:"idle"`
	Remaining    time.Duration `json:"remaining"`
}

// Status returns a snapshot of session id.
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return Status{}, false
	}
	idle := m.now().Sub(e.lastActivity)
	remaining := m.idleTimeout - idle
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		ID:           id,
		Created:      e.created,
		LastActivity: e.lastActivity,
		Idle:         idle,
		Remaining:    remaining,
	}, true
}

// register must be called with m.mu held.
func (m *Manager) register(id string) *entry {
	now := m.now()
	e := &entry{
		created:      now,
		lastActivity: now,
		limiter:      rate.NewLimiter(limitFor(m.minInterval), 1),
	}
	m.sessions[id] = e
	return e
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// =============================================================================
// COOKIES
// =============================================================================

// Sign returns the cookie value for id.
func (m *Manager) Sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(m.mac(id))
}

// Verify checks a cookie value and returns the session ID it carries.
func (m *Manager) Verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if subtle.ConstantTimeCompare(got, m.mac(id)) != 1 {
		return "", false
	}
	return id, true
}

func (m *Manager) mac(id string) []byte {
	h, err := blake2b.New256(m.key)
	if err != nil {
		// Only possible with a key longer than 64 bytes, which NewManager prevents.
		panic(err)
	}
	h.Write([]byte(id))
	return h.Sum(nil)
}

// Lookup returns the verified session ID from the request cookie.
func (m *Manager) Lookup(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	return m.Verify(c.Value)
}

// Attach sets the session cookie for id on the response. The cookie expiry
// slides with every call.
func (m *Manager) Attach(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    m.Sign(id),
		Path:     "/",
		MaxAge:   int(m.idleTimeout / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear deletes the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Session resolves the request's session, issuing a new one when the cookie
// is missing, forged or expired. The cookie is (re)attached either way.
func (m *Manager) Session(w http.ResponseWriter, r *http.Request) (id string, isNew bool) {
	if existing, ok := m.Lookup(r); ok {
		if err := m.Touch(existing); err == nil {
			m.Attach(w, existing)
			return existing, false
		}
	}
	id = m.Issue()
	m.Attach(w, id)
	return id, true
}
