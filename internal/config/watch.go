package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"
)

// DefaultDebounce is how long the watcher waits after the last event on the
// config file before reloading it.
const DefaultDebounce = 200 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce sets the quiet period that coalesces a burst of events into
// one reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch monitors the config file at path and calls onChange with the newly
// loaded Config after each settled change. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// replace the file (write to a temp file, then rename over) keep being
// seen. Events for other names in the directory are ignored. A burst of
// events is coalesced: the reload happens once the file has been quiet for
// the debounce period, and content identical to the last delivered config
// is skipped.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config), opts ...WatchOption) error {
	o := watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	dir, name := filepath.Split(abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %q: %w", dir, err)
	}

	slog.Info("config: watching for changes", "path", abs, "debounce", o.debounce)

	last := fileDigest(abs)
	timer := time.NewTimer(o.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// Remove and Rename leave nothing to read; the save that follows
			// arrives as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(o.debounce)

		case <-timer.C:
			data, err := os.ReadFile(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			sum := digest(data)
			if bytes.Equal(sum, last) {
				slog.Debug("config: content unchanged, skipping reload", "path", abs)
				continue
			}
			cfg, err := Parse(data)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			last = sum
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func fileDigest(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return digest(data)
}

func digest(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}
