// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/logging"
	"github.com/jeranaias/rigrun-chat/internal/ollama"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/session"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// =============================================================================
// COMPONENT CONSTRUCTION
// =============================================================================

// newLogger builds the zap logger described by cfg.Logging.
func newLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	logger, level, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("create logger: %w", err)
	}
	return logger, level, nil
}

// newRenderer builds the HTML renderer selected by cfg.Render. obs may be nil.
func newRenderer(cfg *config.Config, logger *zap.Logger, obs render.Observer) *render.Renderer {
	opts := []render.Option{render.WithLogger(logger)}
	if obs != nil {
		opts = append(opts, render.WithObserver(obs))
	}
	if cfg.Render.Engine == config.EngineFallback {
		return render.New(opts...)
	}

	engine := render.NewGoldmarkEngine(render.EngineConfig{
		Highlight:      cfg.Render.Highlight,
		HighlightStyle: cfg.Render.HighlightStyle,
	})
	opts = append(opts,
		render.WithEngine(engine),
		render.WithSanitizer(render.NewPolicySanitizer()),
	)
	return render.New(opts...)
}

// newBackend builds the answer backend selected by cfg.Backend. "none"
// returns nil: the server then answers 503.
func newBackend(cfg *config.Config) answer.Backend {
	b := cfg.Backend
	switch b.Type {
	case config.BackendOllama:
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      b.URL,
			Timeout:      b.Timeout(),
			DefaultModel: b.Model,
		})
		return answer.NewOllamaBackend(client, answer.OllamaOptions{
			Model:        b.Model,
			SystemPrompt: b.SystemPrompt,
			MaxTokens:    b.MaxTokens,
		})
	case config.BackendHTTP:
		return answer.NewHTTPBackend(b.URL, b.APIKey, b.Timeout())
	default:
		return nil
	}
}

// newLimits builds the question limits from cfg.Chat.
func newLimits(cfg *config.Config) (answer.Limits, error) {
	blocked, err := answer.CompileBlocked(cfg.Chat.BlockedPatterns)
	if err != nil {
		return answer.Limits{}, err
	}
	return answer.Limits{
		MaxChars:  cfg.Chat.MaxQuestionChars,
		MaxTokens: cfg.Chat.MaxInputTokens,
		Blocked:   blocked,
	}, nil
}

// newSessions builds the session manager from cfg.Session and cfg.Chat.
func newSessions(cfg *config.Config) (*session.Manager, error) {
	return session.NewManager(session.Config{
		CookieName:  cfg.Session.CookieName,
		Secret:      []byte(cfg.Session.Secret),
		IdleTimeout: cfg.Session.IdleTimeout(),
		MinInterval: cfg.Chat.MinInterval(),
		Secure:      cfg.Session.SecureCookie,
	})
}

// openStore opens the conversation database.
func openStore(cfg *config.Config) (*storage.Store, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return store, nil
}
