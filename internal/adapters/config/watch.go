package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/melih/ocomp/internal/logfields"
)

// Watch logs a warning whenever config.toml changes while the service runs.
// The loaded configuration is immutable; edits take effect on restart.
// onChange, if non-nil, is called after each logged change. Watch returns
// once the watcher is set up and stops when ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	// Watch the directory: editors commonly replace the file by rename.
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	path := filepath.Clean(s.Path())
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				slog.Warn("Configuration changed on disk; restart to apply",
					logfields.Path(path),
					slog.String("op", ev.Op.String()))
				if onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", logfields.Error(err))
			}
		}
	}()
	return nil
}
