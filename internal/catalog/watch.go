package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"storefront/internal/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever path changes, until ctx is done.
// The parent directory is watched so editors that save by rename are seen.
// A file that fails to parse keeps the previous catalog in place.
func (s *Service) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}
	logger.LogInfo("Watching catalog file %s for changes", abs)

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
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.LogWarn("Catalog watcher error: %v", err)

		case <-timer.C:
			if err := s.LoadFromFile(abs); err != nil {
				logger.LogError("Catalog reload failed, keeping previous catalog: %v", err)
			}
		}
	}
}
