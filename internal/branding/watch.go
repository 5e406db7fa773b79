package branding

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes the result to
// onChange. A file that fails to parse is logged and skipped. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Branding)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("branding: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file, so watch its directory.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("branding: watch %s: %w", path, err)
	}

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload = time.After(reloadDebounce)
			}
		case <-reload:
			reload = nil
			b, err := Load(target)
			if err != nil {
				logger.Warn("branding reload failed, keeping current branding", "path", target, "err", err)
				continue
			}
			logger.Info("branding reloaded", "path", target)
			onChange(b)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("branding watcher error", "err", err)
		}
	}
}
