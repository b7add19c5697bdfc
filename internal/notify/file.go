// Package notify carries the payload-free "state changed" signal between
// processes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileChannel signals by rewriting a small file that subscribers watch.
type FileChannel struct {
	path string
}

func NewFileChannel(path string) (*FileChannel, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}
	return &FileChannel{path: path}, nil
}

func (c *FileChannel) Post(context.Context) error {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.WriteFile(c.path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("post signal: %w", err)
	}
	return nil
}

// Subscribe watches the signal file until ctx ends. Bursts of writes collapse
// into a single pending wakeup.
func (c *FileChannel) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}

	out := make(chan struct{}, 1)
	target := filepath.Clean(c.path)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				wake(out)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("signal watcher error", "error", err)
			}
		}
	}()
	return out, nil
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
