package config

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// AutonomyWatcher holds the current autonomy configuration behind an
// atomic pointer, swapped in place whenever the mounted file changes, so
// the scheduler observes new limits on its next tick without a restart.
type AutonomyWatcher struct {
	current atomic.Pointer[Autonomy]
	watcher *fsnotify.Watcher
	path    string
}

// WatchAutonomy loads path once, then watches it for changes via
// fsnotify, reloading into the atomic pointer on every write event.
func WatchAutonomy(path string) (*AutonomyWatcher, error) {
	a, err := LoadAutonomy(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	aw := &AutonomyWatcher{watcher: w, path: path}
	aw.current.Store(&a)

	go aw.loop()
	return aw, nil
}

func (aw *AutonomyWatcher) loop() {
	for {
		select {
		case ev, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			a, err := LoadAutonomy(aw.path)
			if err != nil {
				slog.Warn("autonomy config reload failed", "error", err, "path", aw.path)
				continue
			}
			aw.current.Store(&a)
			slog.Info("autonomy config reloaded", "path", aw.path)
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("autonomy config watch error", "error", err)
		}
	}
}

// Current returns the latest loaded autonomy configuration.
func (aw *AutonomyWatcher) Current() Autonomy {
	return *aw.current.Load()
}

// Close stops the underlying fsnotify watcher.
func (aw *AutonomyWatcher) Close() error {
	return aw.watcher.Close()
}
