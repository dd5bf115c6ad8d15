// Package watch re-runs a task whenever files matching a glob change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/telemetry"
)

// Action is what a watcher runs for each batch of changes.
type Action func(ctx context.Context) error

// Watcher maps one glob pattern to one action.
type Watcher struct {
	root     string
	pattern  string
	action   Action
	debounce time.Duration
	logger   *slog.Logger

	fsw   *fsnotify.Watcher
	runs  *coalescer
	wg    sync.WaitGroup
	ready bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for further events before
// starting a run. Zero starts immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for pattern, a slash separated doublestar glob
// relative to root.
func New(root, pattern string, action Action, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		pattern:  pattern,
		action:   action,
		debounce: 100 * time.Millisecond,
		logger:   telemetry.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("watch", pattern)
	return w
}

// Start registers the filesystem listeners and begins processing events in
// the background until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if w.ready {
		return errors.New("watcher already started")
	}

	base := filepath.Join(w.root, filepath.FromSlash(fsutil.StaticBase(w.pattern)))
	info, err := os.Stat(base)
	if err != nil {
		return fmt.Errorf("watch base %s: %w", base, err)
	}
	if !info.IsDir() {
		base = filepath.Dir(base)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addTree(base); err != nil {
		fsw.Close()
		return err
	}

	w.runs = newCoalescer(func() {
		if err := w.action(ctx); err != nil {
			w.logger.Error("triggered run failed", "error", err)
		}
	})
	w.ready = true

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("watching", "dir", base)
	return nil
}

// Wait blocks until the event loop has stopped and any in-flight run has
// finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
	if w.runs != nil {
		w.runs.wait()
	}
}

// Run is Start followed by Wait.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.Wait()
	return nil
}

// addTree adds dir and all its subdirectories; fsnotify is not recursive.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("change detected", "op", event.Op.String(), "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.runs.trigger()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// relevant reports whether event touches a file matching the pattern. New
// directories are added to the watch set and count as a change when they
// already contain matching files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("add new directory", "path", event.Name, "error", err)
			}
			return w.containsMatch(event.Name)
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	rel, ok := w.rel(event.Name)
	return ok && fsutil.Match(rel, w.pattern)
}

func (w *Watcher) containsMatch(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if rel, ok := w.rel(path); ok && !d.IsDir() && fsutil.Match(rel, w.pattern) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
