// Package watcher monitors a project tree for source changes and batches
// them into debounced change sets for incremental documentation runs.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called with the relative paths of files that changed
// since the last debounce window closed.
type ChangeCallback func(changedFiles []string)

// Watcher monitors a project root for writes to documentable files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	callback ChangeCallback
	debounce time.Duration

	// Dirs never descended into; mirrors the discovery skip list so the
	// watcher and the pipeline agree on what counts as source.
	skipDirs map[string]struct{}

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// New creates a watcher over root. outputDir is excluded so generated
// documentation never triggers another run.
func New(root, outputDir string, callback ChangeCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	skip := map[string]struct{}{
		".git":         {},
		"node_modules": {},
		"vendor":       {},
		"dist":         {},
		"build":        {},
		"target":       {},
	}
	if rel, err := filepath.Rel(root, outputDir); err == nil && !strings.HasPrefix(rel, "..") {
		skip[rel] = struct{}{}
	}

	w := &Watcher{
		watcher:  fsw,
		root:     root,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		skipDirs: skip,
		pending:  make(map[string]struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches root and every subdirectory not on the skip list.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if rel != "." {
			if w.skipped(rel) {
				return filepath.SkipDir
			}
			if strings.HasPrefix(filepath.Base(rel), ".") {
				return filepath.SkipDir
			}
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) skipped(rel string) bool {
	for dir := range w.skipDirs {
		if rel == dir || strings.HasPrefix(rel, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching through transient errors
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if w.skipped(rel) || strings.HasPrefix(filepath.Base(rel), ".") {
		return
	}

	// A created directory needs its own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			return
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[rel] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)
	w.callback(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}
