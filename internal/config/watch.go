package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchLogLevel reloads the configuration whenever the file at path changes
// and applies the resulting log level to level. The parent directory is
// watched so that editors which replace the file on save are handled.
// A reload that fails to parse is logged and leaves the level unchanged.
// The watch stops when ctx is done.
func WatchLogLevel(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				c, err := Load()
				if err != nil {
					logger.Warn("config reload failed", "path", path, "error", err)
					continue
				}
				if c.LogLevel != level.Level() {
					logger.Info("log level changed", "from", level.Level(), "to", c.LogLevel)
					level.Set(c.LogLevel)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}
