// Package watch triggers a callback when configuration files change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the quiet period before a burst of events fires the callback
const DefaultDelay = 2 * time.Second

// Watcher watches a set of directories (non-recursively) and calls onChange
// once per burst of events
type Watcher struct {
	dirs     []string
	onChange func()
	logger   *slog.Logger
	debounce *debouncer
}

// New creates a watcher. Duplicate directories are watched once.
func New(dirs []string, delay time.Duration, onChange func(), logger *slog.Logger) *Watcher {
	seen := make(map[string]bool)
	var unique []string
	for _, d := range dirs {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			unique = append(unique, d)
		}
	}

	return &Watcher{
		dirs:     unique,
		onChange: onChange,
		logger:   logger,
		debounce: &debouncer{delay: delay},
	}
}

// Run watches until ctx is cancelled. A pending debounced callback is
// dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
	}()

	for _, d := range w.dirs {
		if err := fsw.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
		w.logger.Info("watching directory", "dir", d)
	}

	defer w.debounce.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("configuration change detected", "path", event.Name, "op", event.Op.String())
			w.debounce.trigger(w.onChange)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant filters out chmod-only events and hidden files such as editor
// swap files
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

// debouncer implements debouncing for change events
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.callback = nil
}
