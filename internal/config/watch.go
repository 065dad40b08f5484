// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/logging"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// new, validated Config to onChange. Invalid files are logged and ignored;
// the previous configuration stays in effect.
//
// The parent directory is watched rather than the file so that editors that
// replace the file via rename are handled. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	logger = logging.OrNop(logger)
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	w := &configWatcher{
		path:     absPath,
		logger:   logger,
		onChange: onChange,
		debounce: DefaultWatchDebounce,
	}
	go w.loop(ctx, watcher)
	return nil
}

type configWatcher struct {
	path     string
	logger   *zap.Logger
	onChange func(*Config)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (w *configWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("CONFIG_WATCH_ERROR", zap.Error(err))
		}
	}
}

func (w *configWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *configWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *configWatcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("CONFIG_RELOAD_FAILED", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("CONFIG_RELOADED", zap.String("path", w.path))
	w.onChange(cfg)
}
