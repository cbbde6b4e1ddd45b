package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] polls the file.
const DefaultWatchInterval = 5 * time.Second

// fileStamp identifies one version of the config file. The hash covers the
// raw bytes, so a changed environment alone is not an edit.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher reloads a config file when it changes and hands each valid new
// version to a callback. Invalid versions are logged and skipped; the last
// valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	onError  func(error)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler receives every failed reload. The default logs a warning.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path once and returns a Watcher for it. Polling starts
// with [Watcher.Run]. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		onError: func(err error) {
			slog.Warn("config: reload failed; keeping the previous config", "path", path, "err", err)
		},
	}
	for _, o := range opts {
		o(w)
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. Files whose modification time and size are
// unchanged are not re-read.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			info, err := os.Stat(w.path)
			if err != nil {
				w.onError(err)
				continue
			}
			w.mu.Lock()
			same := info.ModTime().Equal(w.stamp.mtime) && info.Size() == w.stamp.size
			w.mu.Unlock()
			if same {
				continue
			}
			if _, err := w.Reload(); err != nil {
				w.onError(err)
			}
		}
	}
}

// Reload reads the file now. It reports whether the content changed; the
// callback has returned by the time Reload does.
func (w *Watcher) Reload() (bool, error) {
	cfg, stamp, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if stamp.sum == w.stamp.sum {
		w.stamp = stamp
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.stamp = cfg, stamp
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
