package remote

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
)

// Reload events passed to the OnReload callback.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventRemoved  = "removed"
)

// DefaultSettleDelay is how long a source file must stay quiet before it is
// reloaded.
const DefaultSettleDelay = 100 * time.Millisecond

// Watcher keeps a Library in step with the function sources under a
// directory. Bursts of writes to the same file are reloaded once.
type Watcher struct {
	root    string
	library *Library
	loader  *Loader
	logger  *log.Logger

	settle   time.Duration
	onReload func(entry *Entry, event string)
	onError  func(err error)

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long a file must be quiet before reloading.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// WithOnReload is called after a function was added, replaced or removed.
func WithOnReload(fn func(entry *Entry, event string)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// WithOnError is called when a source cannot be loaded.
func WithOnError(fn func(err error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher creates a watcher for the sources under root. It does nothing
// until Start.
func NewWatcher(root string, library *Library, logger *log.Logger, opts ...WatcherOption) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeFunctionLoad, "%s is not a directory", root).Err()
	}
	w := &Watcher{
		root:    root,
		library: library,
		loader:  NewLoader(logger),
		logger:  logger,
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start subscribes to the directory tree and begins reloading.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.subscribe(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)

	w.logger.Function().Info("function watcher started", "root", w.root)
	return nil
}

// Stop ends the event loop and releases the subscription. A stopped
// watcher can be started again.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done, fsw := w.cancel, w.done, w.fsw
	w.cancel, w.done, w.fsw = nil, nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	w.logger.Function().Info("function watcher stopped", "root", w.root)
	return fsw.Close()
}

// IsRunning reports whether the watcher has been started and not stopped.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// subscribe adds dir and its visible subdirectories.
func (w *Watcher) subscribe(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hiddenDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Function().Warn("cannot watch directory", "path", path, "error", err.Error())
		}
		return nil
	})
}

func hiddenDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(fsw, ev) {
				continue
			}
			pending[ev.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.settle)
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil
			for path := range pending {
				w.sync(path)
			}
			pending = make(map[string]struct{})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.fail(err, "watch error", "root", w.root)
		}
	}
}

// relevant filters events down to function sources. New directories are
// subscribed on the way.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !hiddenDir(info.Name()) {
				w.subscribe(fsw, ev.Name)
			}
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(ev.Name), SourceExt)
}

// sync brings the library in line with the current state of path. Files
// replaced by rename still exist and count as changed.
func (w *Watcher) sync(path string) {
	if _, err := os.Stat(path); err == nil {
		w.reload(path)
		return
	}
	w.drop(path)
}

func (w *Watcher) reload(path string) {
	entry, err := w.loader.LoadFile(path)
	if err != nil {
		w.fail(err, "function reload failed", "path", path)
		return
	}

	event := EventCreated
	if prev, err := w.library.LookupByFile(path); err == nil {
		if prev.SourceHash == entry.SourceHash {
			return
		}
		event = EventModified
		if prev.Function.Name != entry.Function.Name {
			w.library.Remove(prev.Function.Name)
		}
	}
	if _, err := w.library.Add(entry); err != nil {
		w.fail(err, "function reload failed", "path", path, "function", entry.Function.Name)
		return
	}

	w.logger.Function().Info("function reloaded", "function", entry.Function.Name, "event", event, "path", path)
	w.notify(entry, event)
}

func (w *Watcher) drop(path string) {
	entry, err := w.library.LookupByFile(path)
	if err != nil {
		return
	}
	if err := w.library.Remove(entry.Function.Name); err != nil {
		w.fail(err, "function removal failed", "path", path, "function", entry.Function.Name)
		return
	}
	w.logger.Function().Info("function removed", "function", entry.Function.Name, "path", path)
	w.notify(entry, EventRemoved)
}

func (w *Watcher) notify(entry *Entry, event string) {
	if w.onReload != nil {
		w.onReload(entry, event)
	}
}

func (w *Watcher) fail(err error, msg string, fields ...interface{}) {
	w.logger.Function().Error(msg, err, fields...)
	if w.onError != nil {
		w.onError(err)
	}
}
