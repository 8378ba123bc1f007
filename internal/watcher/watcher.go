// Package watcher watches the plugins folder and triggers registry rescans.
//
// Package directories copied into the folder by hand are picked up after
// the folder has been quiet for the debounce period; directories removed
// by hand are forgotten the same way.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrRunning is returned when Start is called on a running watcher.
var ErrRunning = errors.New("watcher is already running")

// Rescanner reconciles installed plugins with the folder contents.
type Rescanner interface {
	Rescan(ctx context.Context) ([]string, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the folder must be quiet before a rescan.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l.WithField("component", "watcher")
		}
	}
}

// Watcher monitors the plugins folder with fsnotify.
type Watcher struct {
	mu sync.Mutex

	dir      string
	target   Rescanner
	debounce time.Duration
	log      *logrus.Entry

	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	scans atomic.Int64
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, target Rescanner, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		target:   target,
		debounce: 500 * time.Millisecond,
		log:      logrus.StandardLogger().WithField("component", "watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates the folder if needed and starts watching it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrRunning
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	// Package directories are watched too, so files copied into a new
	// directory after its creation postpone the rescan.
	entries, _ := os.ReadDir(w.dir)
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			_ = fsw.Add(filepath.Join(w.dir, e.Name()))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx, fsw)

	w.log.WithFields(logrus.Fields{"dir": w.dir, "debounce": w.debounce}).Info("watching plugins folder")
	return nil
}

// Stop stops watching and waits for a pending rescan to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	fsw := w.fsw
	w.mu.Unlock()

	err := fsw.Close()
	w.wg.Wait()
	return err
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Scans returns the number of rescans triggered so far.
func (w *Watcher) Scans() int64 {
	return w.scans.Load()
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.dir) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			timer.Reset(w.debounce)
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("plugins folder watch error")

		case <-fire:
			fire = nil
			w.rescan(ctx)
		}
	}
}

// relevant filters out chmod noise and the registry's own staging and
// trash directories.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.dir, ev.Name)
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return !hidden(first)
}

func (w *Watcher) rescan(ctx context.Context) {
	w.scans.Add(1)
	adopted, err := w.target.Rescan(ctx)
	if err != nil {
		w.log.WithError(err).Warn("plugins folder rescan failed")
		return
	}
	if len(adopted) > 0 {
		w.log.WithField("plugins", adopted).Info("adopted plugins from folder")
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
