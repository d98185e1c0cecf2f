package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce = 500 * time.Millisecond
	defaultRescan   = 30 * time.Second
)

// rewatchBackoff spaces the attempts to re-establish a lost directory
// watch.
var rewatchBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

// Watcher watches a spool directory and invokes a handler once new
// document files settle. A periodic rescan backs up the filesystem
// notifications, so a missed event delays ingestion instead of losing
// it; if notifications are unavailable entirely the watcher degrades to
// rescans alone.
//
// The handler runs on its own goroutine, one invocation at a time. It
// must not call back into the Watcher.
type Watcher struct {
	dir      string
	handler  func()
	fsw      *fsnotify.Watcher
	debounce time.Duration
	rescan   time.Duration
	deb      *debouncer
	log      *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce sets how long file activity must settle before the
// handler runs.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchRescan sets the fallback rescan period.
func WithWatchRescan(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.rescan = d
		}
	}
}

// WithWatchLogger routes watcher logging to log.
func WithWatchLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWatcher starts watching dir and returns immediately. The handler
// fires once shortly after startup so documents already sitting in the
// spool are picked up.
func NewWatcher(dir string, handler func(), opts ...WatcherOption) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: defaultDebounce,
		rescan:   defaultRescan,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.deb = newDebouncer(w.debounce, w.handler)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("filesystem notifications unavailable, relying on rescans", "error", err)
	} else if err := fsw.Add(dir); err != nil {
		w.log.Warn("failed to watch spool directory, relying on rescans", "dir", dir, "error", err)
		_ = fsw.Close()
	} else {
		w.fsw = fsw
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)

	w.deb.Trigger()
	return w, nil
}

// Close stops watching. Any scheduled handler run is cancelled and an
// in-flight one is waited for.
func (w *Watcher) Close() error {
	w.cancel()
	w.wg.Wait()
	w.deb.Cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.fsw != nil {
		events = w.fsw.Events
		errs = w.fsw.Errors
	}

	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events, errs = nil, nil
				continue
			}
			if ev.Name == w.dir && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.rewatch(ctx)
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isDocumentFile(ev.Name) {
				continue
			}
			w.deb.Trigger()

		case err, ok := <-errs:
			if !ok {
				events, errs = nil, nil
				continue
			}
			w.log.Warn("spool watch error", "error", err)

		case <-ticker.C:
			w.deb.Trigger()
		}
	}
}

// rewatch re-establishes the directory watch after the spool was removed
// or replaced, typically by a deploy that swaps the directory. Gives up
// after the backoff schedule; the rescan ticker still covers ingestion.
func (w *Watcher) rewatch(ctx context.Context) {
	for _, delay := range rewatchBackoff {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		_ = w.fsw.Remove(w.dir)
		if err := w.fsw.Add(w.dir); err == nil {
			w.log.Info("re-established spool watch", "dir", w.dir)
			w.deb.Trigger()
			return
		}
	}
	w.log.Warn("lost watch on spool directory, relying on rescans", "dir", w.dir)
}

// debouncer coalesces triggers into one deferred call: each Trigger
// restarts the countdown, and fn runs only after a full delay passes
// with no further triggers. fn runs under the debouncer's lock, so
// invocations never overlap and Cancel waits for an in-flight one.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn after the delay, restarting the countdown if a
// run is already pending.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.run)
}

func (d *debouncer) run() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.fn()
}

// Cancel stops any pending run and prevents future ones.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
