package automod

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRules reloads the rules file whenever it changes, until ctx is done.
// The watch is on the parent directory: editors replace files rather than
// write them in place.
func WatchRules(ctx context.Context, rules *RuleSet, path string) error {
	if err := rules.LoadFile(path); err != nil {
		return fmt.Errorf("initial rules load: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch rules dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := rules.LoadFile(path); err != nil {
					slog.Warn("automod rules reload failed", "path", path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("automod rules watcher error", "error", err)
			}
		}
	}()
	return nil
}
