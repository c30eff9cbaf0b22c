// Package watcher triggers a callback when config context documents change
// on disk.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before onChange runs
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a directory tree for document changes
type Watcher struct {
	root     string
	onChange func()
	debounce time.Duration
	exts     map[string]bool
	log      *zap.SugaredLogger
}

// New creates a watcher for root. onChange runs once per burst of changes.
func New(root string, onChange func()) *Watcher {
	return &Watcher{
		root:     root,
		onChange: onChange,
		debounce: DefaultDebounce,
		exts:     map[string]bool{".json": true, ".yaml": true, ".yml": true},
		log:      zap.S().Named("watcher"),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Watch starts watching the tree for changes.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	w.log.Infow("Watching for changes", "directory", w.root)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if ctx.Err() != nil {
				return
			}
			w.onChange()
		})
	}

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.hidden(event.Name) {
				continue
			}

			// New directories must be added explicitly; fsnotify is not recursive
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.log.Warnw("Failed to watch new directory", "directory", event.Name, "error", err)
					}
					trigger()
					continue
				}
			}

			if !w.relevant(event) {
				continue
			}
			w.log.Debugw("Document changed", "path", event.Name, "op", event.Op.String())
			trigger()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Watcher error", "error", err)

		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return ctx.Err()
		}
	}
}

// relevant reports whether event touches a document. Removes and renames
// carry no file type to check, so any of them under a watched tree counts.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return w.exts[strings.ToLower(filepath.Ext(event.Name))]
}

func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
