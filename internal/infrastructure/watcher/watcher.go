// Package watcher reports debounced changes to Dart sources.
package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultSkipDirs never contain sources worth re-running for.
var defaultSkipDirs = []string{"packages", "build", ".dart_tool", ".pub"}

// Watcher monitors Dart source files for changes.
type Watcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	extensions []string
	skip       map[string]struct{}
	skipPaths  []string
	logger     *zap.Logger
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce duration for file change events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithExtensions sets the file extensions to watch.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = exts
	}
}

// WithIgnoredPaths excludes directories such as the coverage output dir.
func WithIgnoredPaths(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				w.skipPaths = append(w.skipPaths, abs)
			}
		}
	}
}

// WithLogger reports watch errors to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a new file watcher.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsw,
		debounce:   500 * time.Millisecond,
		extensions: []string{".dart"},
		skip:       make(map[string]struct{}, len(defaultSkipDirs)),
		logger:     zap.NewNop(),
	}
	for _, d := range defaultSkipDirs {
		w.skip[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// WatchDir adds root and its subdirectories to the watch list.
func (w *Watcher) WatchDir(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignored(dir string) bool {
	base := filepath.Base(dir)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if _, ok := w.skip[base]; ok {
		return true
	}
	for _, p := range w.skipPaths {
		if dir == p {
			return true
		}
	}
	return false
}

// Events returns a channel that emits once per burst of relevant writes.
// It is closed when ctx is done or the watcher is closed.
func (w *Watcher) Events(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})

	go func() {
		defer close(out)

		var timer *time.Timer
		var timerCh <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !isWriteEvent(event.Op) || !w.hasRelevantExtension(event.Name) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C

			case <-timerCh:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
				timerCh = nil

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("file watch error", zap.Error(err))
			}
		}
	}()

	return out
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isWriteEvent(op fsnotify.Op) bool {
	return op&fsnotify.Write == fsnotify.Write ||
		op&fsnotify.Create == fsnotify.Create
}

func (w *Watcher) hasRelevantExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
