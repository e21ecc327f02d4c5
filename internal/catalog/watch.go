package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog from path whenever the file changes, until ctx
// is done. The parent directory is watched so rename-on-save is seen.
// onReload, if non-nil, runs after each successful reload.
func (c *Catalog) Watch(ctx context.Context, fs afero.Fs, path string, delay time.Duration, logger *slog.Logger, onReload func()) error {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}

	debounced := debounce.New(delay)
	reload := func() {
		projects, err := readFile(fs, abs)
		if err != nil {
			logger.Warn("catalog reload failed, keeping previous catalog", "path", abs, "error", err)
			return
		}
		if err := c.Replace(projects); err != nil {
			logger.Warn("catalog reload rejected, keeping previous catalog", "path", abs, "error", err)
			return
		}
		logger.Info("catalog reloaded", "path", abs, "projects", len(projects))
		if onReload != nil {
			onReload()
		}
	}

	logger.Info("watching catalog", "path", abs, "debounce", delay)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("stopping catalog watch")
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					debounced(reload)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", "error", err)
			}
		}
	}()

	return nil
}
