package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/knowledge/ingestion"
)

// DefaultDebounce is how long a path must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// IngestFunc observes each ingestion performed by a Watcher.
type IngestFunc func(path string, res *ingestion.AddKnowledgeResult, err error)

// Watcher ingests files created or modified under a directory.
type Watcher struct {
	loader   *Loader
	root     string
	fs       *fsnotify.Watcher
	debounce time.Duration
	onIngest IngestFunc
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period. Default is DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnIngest registers a callback run after every ingestion attempt.
func WithOnIngest(fn IngestFunc) WatchOption {
	return func(w *Watcher) {
		w.onIngest = fn
	}
}

// Watch starts watching root and every visible directory below it.
// Events are processed by Run.
func (l *Loader) Watch(root string, opts ...WatchOption) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		loader:   l,
		root:     root,
		fs:       fsw,
		debounce: DefaultDebounce,
		logger:   l.logger.With("processor", "watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is done or the watcher is closed.
// Every created or written file is re-ingested once its path has been
// quiet for the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWatcherClosed
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})
	w.logger.Info("watching directory", "dir", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(event, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-timer.C:
			w.flush(ctx, pending)
		}
	}
}

// handle records the paths an event touches. It reports whether anything
// new is pending.
func (w *Watcher) handle(event fsnotify.Event, pending map[string]struct{}) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if w.hidden(event.Name) {
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Removed again before we looked
		return false
	}

	if info.IsDir() {
		if !event.Has(fsnotify.Create) {
			return false
		}
		// Files may land in a new directory before it is watched
		files, err := w.addTree(event.Name)
		if err != nil {
			w.logger.Warn("cannot watch directory", "dir", event.Name, "err", err)
		}
		for _, f := range files {
			pending[f] = struct{}{}
		}
		return len(files) > 0
	}

	if !info.Mode().IsRegular() {
		return false
	}
	pending[event.Name] = struct{}{}
	return true
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	for path := range pending {
		delete(pending, path)
		if ctx.Err() != nil {
			return
		}
		res, err := w.loader.LoadFile(ctx, w.root, path, true)
		if err == nil {
			w.logger.Info("file ingested", "path", path, "documentId", res.DocumentID, "fragments", res.FragmentCount)
		}
		if w.onIngest != nil {
			w.onIngest(path, res, err)
		}
	}
}

// addTree watches dir and its visible subdirectories and returns the
// regular files found in them.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != w.root && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		if d.Type().IsRegular() && dir != w.root {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// hidden reports whether any element of path below the root is hidden.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.Close()
}
