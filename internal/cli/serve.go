// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/logging"
	"github.com/jeranaias/rigrun-chat/internal/metrics"
	"github.com/jeranaias/rigrun-chat/internal/server"
	"github.com/jeranaias/rigrun-chat/internal/session"
	"github.com/jeranaias/rigrun-chat/internal/view"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat web server",
		Long: `Start the chat web server.

The config file is watched while the server runs: log level, question
limits, the per-session interval, history size and trusted proxies are
applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	cfg, cfgPath, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, level, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	m := metrics.New()
	renderer := newRenderer(cfg, logger.Named("render"), m)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := newSessions(cfg)
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET_EPHEMERAL", zap.String("hint", "set session.secret to keep sessions across restarts"))
	}

	limits, err := newLimits(cfg)
	if err != nil {
		return err
	}
	backend := newBackend(cfg)
	answers := answer.NewService(backend, limits, logger.Named("answer"))

	viewOpts := view.DefaultOptions()
	viewOpts.MaxQuestionChars = cfg.Chat.MaxQuestionChars
	viewOpts.HighlightStyle = ""
	if cfg.Render.Engine != config.EngineFallback && cfg.Render.Highlight {
		viewOpts.HighlightStyle = cfg.Render.HighlightStyle
	}
	views, err := view.New(renderer, viewOpts)
	if err != nil {
		return err
	}

	applyTrustedProxies(cfg.Server.TrustedProxies, logger)

	server.Version = Version
	srv, err := server.New(server.ConfigFrom(cfg), server.Deps{
		Answers:  answers,
		Store:    store,
		Sessions: sessions,
		Views:    views,
		Renderer: renderer,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.Run(ctx, sweepInterval, func(removed int) {
		logger.Debug("SESSIONS_EXPIRED", zap.Int("removed", removed))
		m.SetSessions(sessions.Count())
	})

	if _, err := os.Stat(cfgPath); err == nil {
		reload := &reloader{
			verbose:  opts.verbose,
			level:    level,
			sessions: sessions,
			answers:  answers,
			server:   srv,
			logger:   logger,
		}
		if err := config.Watch(ctx, cfgPath, logger, reload.apply); err != nil {
			logger.Warn("CONFIG_WATCH_FAILED", zap.String("path", cfgPath), zap.Error(err))
		}
	}

	if backend != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := backend.Ping(pingCtx); err != nil {
			logger.Warn("BACKEND_UNAVAILABLE", zap.String("backend", backend.Name()), zap.Error(err))
		}
		cancel()
	} else {
		logger.Warn("BACKEND_DISABLED", zap.String("hint", "POST /chat answers 503 until backend.type is set"))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// applyTrustedProxies installs the configured proxy ranges. An empty list
// restores server.DefaultTrustedProxies.
func applyTrustedProxies(entries []string, logger *zap.Logger) {
	if len(entries) == 0 {
		entries = server.DefaultTrustedProxies
	}
	if invalid := server.SetTrustedProxies(entries); len(invalid) > 0 {
		logger.Warn("TRUSTED_PROXY_INVALID", zap.Strings("entries", invalid))
	}
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// reloader applies the settings that can change while the server runs.
// Listen address, storage path, backend and session secret need a restart.
type reloader struct {
	verbose  bool
	level    zap.AtomicLevel
	sessions *session.Manager
	answers  *answer.Service
	server   *server.Server
	logger   *zap.Logger
}

func (r *reloader) apply(next *config.Config) {
	if !r.verbose {
		if lvl, err := logging.ParseLevel(next.Logging.Level); err == nil {
			r.level.SetLevel(lvl)
		}
	}

	limits, err := newLimits(next)
	if err != nil {
		r.logger.Warn("CONFIG_RELOAD_PARTIAL", zap.Error(err))
	} else {
		r.answers.SetLimits(limits)
	}

	r.sessions.SetMinInterval(next.Chat.MinInterval())
	r.server.SetHistoryLimit(next.Chat.HistoryLimit)
	applyTrustedProxies(next.Server.TrustedProxies, r.logger)

	r.logger.Info("CONFIG_RELOADED",
		zap.String("log_level", r.level.String()),
		zap.Int("max_question_chars", next.Chat.MaxQuestionChars),
		zap.Duration("min_interval", next.Chat.MinInterval()),
		zap.Int("history_limit", next.Chat.HistoryLimit),
	)
}
