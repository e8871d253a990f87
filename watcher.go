package throttling

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// WatchLimits reloads the limits file into t whenever it changes, until ctx
// is cancelled. The directory is watched rather than the file so that
// atomic renames are seen. A reload that fails keeps the previous limits.
func WatchLimits(ctx context.Context, path string, t *Throttler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve limits path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	logger.Info("watching throttling limits", "path", path)

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("limits file event", "path", event.Name, "op", event.Op.String())
			timer.Reset(reloadDebounce)

		case <-timer.C:
			limits, err := LoadLimits(path)
			if err != nil {
				logger.Error("throttling limits reload failed", "path", path, "error", err)
				continue
			}
			if limits == nil {
				logger.Warn("throttling limits file missing or empty, keeping previous limits", "path", path)
				continue
			}
			t.SetLimits(limits)
			logger.Info("throttling limits reloaded", "path", path, "actions", len(limits))

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("limits watcher error", "error", err)
		}
	}
}
