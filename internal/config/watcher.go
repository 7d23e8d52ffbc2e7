package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback receives a freshly loaded and validated configuration.
// A callback error is logged; it does not stop later callbacks.
type ReloadCallback func(*Config) error

// ErrWatcherClosed is returned when an operation is attempted on a closed watcher.
var ErrWatcherClosed = errors.New("config: watcher already closed")

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
//
// The parent directory is watched rather than the file itself so that editors
// which save through a temp file and rename are still seen. Bursts of events
// collapse into one reload after the debounce delay. A file that fails to
// parse or validate is logged and skipped; the previous config stays live.
type Watcher struct {
	fs        *fsnotify.Watcher
	timer     *time.Timer
	done      chan struct{}
	path      string
	callbacks []ReloadCallback
	debounce  time.Duration
	mu        sync.Mutex
	closed    bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits for events to settle.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher for path. The parent directory must exist.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:       fsw,
		done:     make(chan struct{}),
		path:     absPath,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close watcher after add failure")
		}
		return nil, err
	}

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// OnReload registers a callback. Callbacks run in registration order.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Watch blocks until ctx is canceled or the watcher is closed.
// Only Write and Create events on the watched file schedule a reload.
func (w *Watcher) Watch(ctx context.Context) error {
	target := filepath.Base(w.path)
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			// Chmod comes from indexers and antivirus scanners
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("failed to reload config")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("reloaded config is invalid, keeping previous")
		return
	}

	log.Info().Str("path", w.path).Msg("config file reloaded")

	w.mu.Lock()
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			log.Error().Err(err).Msg("config reload callback error")
		}
	}
}

// Close stops watching and releases resources.
// Returns ErrWatcherClosed if already closed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}

	return w.fs.Close()
}
