package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceInterval = 100 * time.Millisecond

	// Events for a file the engine wrote itself within this window are
	// ignored so a run does not trigger the next one.
	selfWriteWindow = time.Second
)

// Watch runs once, then re-runs whenever a document or structural index
// changes, until ctx is cancelled. Changed documents and, when an index
// input changed, the indexes are invalidated before each re-run. Runs are
// serialised; onRun is called after each one.
func (e *Engine) Watch(ctx context.Context, opts Options, onRun func(*RunResult, error)) error {
	if onRun == nil {
		onRun = func(*RunResult, error) {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDir(watcher, e.repo.CatalogDir()); err != nil {
		return fmt.Errorf("failed to watch catalog dir: %w", err)
	}
	paths := e.repo.IndexPaths()
	for _, p := range []string{paths.Fields, paths.Transforms, paths.Metrics} {
		if p == "" {
			continue
		}
		// Watch the parent so editors that replace the file are seen.
		if err := watcher.Add(filepath.Dir(p)); err != nil {
			e.logger.Warn("cannot watch index file", "path", p, "error", err)
		}
	}
	if paths.Reference != "" {
		if err := watchDir(watcher, paths.Reference); err != nil {
			e.logger.Warn("cannot watch reference dir", "path", paths.Reference, "error", err)
		}
	}

	written := make(map[string]time.Time)
	run := func() {
		res, err := e.Run(ctx, opts)
		if res != nil {
			now := time.Now()
			for _, t := range res.Tables {
				if t.Written {
					written[t.Path] = now
				}
			}
		}
		onRun(res, err)
	}
	run()

	e.logger.Info("watching for changes", "catalog", e.repo.CatalogDir())
	return e.watchLoop(ctx, watcher, written, run)
}

// watchDir recursively adds a directory to the watcher.
func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

func (e *Engine) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, written map[string]time.Time, run func()) error {
	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)
	pending := make(map[string]bool)

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			path, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if err := watchDir(watcher, path); err != nil {
						e.logger.Warn("cannot watch new directory", "path", path, "error", err)
					}
					continue
				}
			}

			if !e.relevant(path) {
				continue
			}
			if at, ok := written[path]; ok {
				if time.Since(at) < selfWriteWindow {
					continue
				}
				delete(written, path)
			}
			pending[path] = true

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceInterval, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			indexChanged := false
			for p := range pending {
				if e.repo.IsIndexPath(p) {
					indexChanged = true
				}
				e.repo.Invalidate(p)
				e.logger.Info("change detected", "path", p)
			}
			clear(pending)
			if indexChanged {
				e.repo.InvalidateIndexes()
			}
			run()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant reports whether a changed path feeds a run: a YAML document under
// the catalog directory or a structural index input.
func (e *Engine) relevant(path string) bool {
	if e.repo.IsIndexPath(path) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	dir, err := filepath.Abs(e.repo.CatalogDir())
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}
