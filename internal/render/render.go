// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrEngineUnavailable is reported when no markdown engine is configured.
// It is handled by the fallback formatter and never reaches callers.
var ErrEngineUnavailable = errors.New("markdown engine unavailable")

// EngineError wraps a failure (error or panic) raised by the markdown engine.
type EngineError struct {
	Cause error
}

func (e *EngineError) Error() string {
	return "markdown engine failed: " + e.Cause.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// RENDER PATHS
// =============================================================================

// Path identifies which strategy produced a fragment.
type Path string

const (
	// PathEngine means the markdown engine (and sanitizer) produced the output.
	PathEngine Path = "engine"
	// PathFallback means the line based fallback formatter produced the output.
	PathFallback Path = "fallback"
	// PathPlain means the fallback formatter failed and escaped plain
	// paragraphs were returned.
	PathPlain Path = "plain"
)

// Observer is notified after every render. The metrics package implements it.
type Observer interface {
	ObserveRender(path Path, elapsed time.Duration)
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer is the render facade. The zero configuration (New with no
// options) has no engine and always uses the fallback formatter.
//
// A Renderer is safe for concurrent use provided its Engine and Sanitizer are.
type Renderer struct {
	engine    Engine
	sanitizer Sanitizer
	logger    *zap.Logger
	observer  Observer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithEngine sets the markdown engine. A nil engine disables the engine path.
func WithEngine(e Engine) Option {
	return func(r *Renderer) { r.engine = e }
}

// WithSanitizer sets the sanitizer applied to engine output.
func WithSanitizer(s Sanitizer) Option {
	return func(r *Renderer) { r.sanitizer = s }
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver sets a render observer.
func WithObserver(o Observer) Option {
	return func(r *Renderer) { r.observer = o }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefault creates a Renderer with the goldmark engine and the bluemonday
// sanitizer.
func NewDefault(logger *zap.Logger, opts ...Option) *Renderer {
	base := []Option{
		WithEngine(NewGoldmarkEngine(DefaultEngineConfig())),
		WithSanitizer(NewPolicySanitizer()),
		WithLogger(logger),
	}
	return New(append(base, opts...)...)
}

// Render converts raw answer text to a safe HTML fragment. It never fails:
// engine errors are logged and the fallback formatter is used instead.
func (r *Renderer) Render(raw string) string {
	start := time.Now()
	normalized := Normalize(raw)

	out, err := r.renderEngine(normalized)
	if err == nil {
		r.observe(PathEngine, start)
		return out
	}

	if errors.Is(err, ErrEngineUnavailable) {
		r.logger.Debug("RENDER_FALLBACK", zap.String("reason", "engine_unavailable"))
	} else {
		r.logger.Warn("RENDER_FALLBACK",
			zap.String("reason", "engine_error"),
			zap.Int("input_bytes", len(raw)),
			zap.Error(err),
		)
	}

	out, ok := formatManually(normalized)
	if !ok {
		r.logger.Error("RENDER_PLAIN", zap.Int("input_bytes", len(raw)))
		r.observe(PathPlain, start)
		return out
	}
	r.observe(PathFallback, start)
	return out
}

// renderEngine runs the engine and sanitizer, converting panics to errors.
func (r *Renderer) renderEngine(text string) (out string, err error) {
	if r.engine == nil {
		return "", ErrEngineUnavailable
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = "", &EngineError{Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	html, err := r.engine.Render(text)
	if err != nil {
		return "", &EngineError{Cause: err}
	}
	if r.sanitizer != nil {
		html = r.sanitizer.Sanitize(html)
	}
	return html, nil
}

func (r *Renderer) observe(path Path, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveRender(path, time.Since(start))
	}
}

// =============================================================================
// PACKAGE LEVEL CONVENIENCE
// =============================================================================

var defaultRenderer = sync.OnceValue(func() *Renderer {
	return NewDefault(nil)
})

// Markdown renders raw with a shared default Renderer (goldmark + bluemonday,
// no logging). The shared renderer is built once and never modified.
func Markdown(raw string) string {
	return defaultRenderer().Render(raw)
}
