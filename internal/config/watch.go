// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// defaultDebounce coalesces editor write bursts into one reload.
const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file on change and hands each valid reload to
// a callback. Invalid edits are logged and skipped; the previous config
// stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
	onReload func(cfg *Config)

	mu      sync.Mutex
	pending bool
	lastAt  time.Time

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for the config file at path. onReload is
// invoked from the watcher goroutine for each successful reload.
func NewWatcher(path string, log *zap.Logger, onReload func(cfg *Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		watcher:  fsw,
		debounce: defaultDebounce,
		log:      log,
		onReload: onReload,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	return w, nil
}

// Watch starts watching for config file changes. Watching the parent
// directory instead of the file itself survives the rename dance editors
// and atomic writers perform on save.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.cancel()
		w.watcher.Close()
		return err
	}
	w.started = true
	go w.processEvents()
	return nil
}

// Close stops watching and releases resources. Safe to call whether or not
// Watch ever started, including after a failed Watch.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

// processEvents processes file system events until closed.
func (w *Watcher) processEvents() {
	defer close(w.done)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.lastAt = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", zap.Error(err))

		case <-ticker.C:
			w.mu.Lock()
			ready := w.pending && time.Since(w.lastAt) >= w.debounce
			if ready {
				w.pending = false
			}
			w.mu.Unlock()
			if ready {
				w.reload()
			}
		}
	}
}

// reload re-parses the config file and publishes it if valid.
func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.log.Warn("config reload skipped", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.path))
	w.onReload(cfg)
}
