package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-loads the config whenever the file at path changes and delivers
// each successfully validated result to onReload. Invalid intermediate
// states (editors write in multiple steps) are logged and skipped, keeping
// the last good config in force. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onReload func(Loaded)) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the file by
	// rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts from multi-step editor saves.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(150*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", watchErr.Error())
		case <-reload:
			loaded, loadErr := Load(path)
			if loadErr != nil {
				logger.Warn("config reload rejected", "path", path, "error", loadErr.Error())
				continue
			}
			logger.Info("config reloaded", "path", path, "policy", loaded.Config.Routing.Policy)
			onReload(loaded)
		}
	}
}
