// Package watcher reloads the configuration file when it changes on disk,
// so allow-list and tuning edits take effect without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/gagmm/claude-code-to-openai/internal/config"
)

const debounce = 500 * time.Millisecond

// Watcher monitors one config file and delivers parsed reloads to a callback.
type Watcher struct {
	path     string
	onReload func(*config.Config)
}

// New builds a watcher for path. onReload receives every successfully parsed
// config; parse failures keep the previous config in effect.
func New(path string, onReload func(*config.Config)) *Watcher {
	return &Watcher{path: path, onReload: onReload}
}

// Run blocks until ctx is done. Editors replace files rather than writing in
// place, so the parent directory is watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	dir := filepath.Dir(w.path)
	if err = fsWatcher.Add(dir); err != nil {
		return err
	}
	log.WithField("path", w.path).Info("watching config file")

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watch error")
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		log.WithError(err).Error("config reload failed, keeping previous config")
		return
	}
	log.Info("config reloaded")
	w.onReload(cfg)
}
