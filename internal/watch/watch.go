package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/packmill/packmill/internal/logging"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher observes a set of directory trees and reports changed files in
// debounced batches. A burst of filesystem events, like an editor's
// write-rename dance or a branch switch, collapses into one callback.
type Watcher struct {
	paths    []string
	debounce time.Duration
	log      *logging.Logger
}

func New(paths []string, debounce time.Duration, logger *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{paths: paths, debounce: debounce, log: logger}
}

// Run blocks until ctx is done, invoking fn with each settled batch of
// changed file paths.
func (w *Watcher) Run(ctx context.Context, fn func(files []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range w.paths {
		if err := addRecursive(watcher, p); err != nil {
			w.log.Warnf("cannot watch %q: %v", p, err)
		}
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	changed := map[string]struct{}{}

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
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						w.log.Warnf("cannot watch new directory %q: %v", event.Name, err)
					}
					continue
				}
			}
			changed[filepath.ToSlash(event.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("watch error: %v", err)

		case <-timer.C:
			if len(changed) == 0 {
				continue
			}
			files := make([]string, 0, len(changed))
			for f := range changed {
				files = append(files, f)
			}
			sort.Strings(files)
			changed = map[string]struct{}{}
			w.log.Debugf("%d files changed", len(files))
			fn(files)
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
