package svcinit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// WatchEvent carries descriptors that appeared in a watched directory
type WatchEvent struct {
	Services []*Service
	Err      error
}

// WatchCleanupFunc stops a watch and waits for its goroutine to exit
type WatchCleanupFunc func() error

// Watch reports descriptors added to dir after the call. Names in seen, and
// every name reported once, are never reported again; changes to them are
// ignored. A file that does not parse yet is retried on its next change.
// Events are debounced by the loader's Debounce.
func (l *Loader) Watch(ctx context.Context, dir string, seen []string) (<-chan WatchEvent, WatchCleanupFunc, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	known := make(map[string]bool, len(seen))
	for _, name := range seen {
		known[name] = true
	}

	debounce := l.Debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ch := make(chan WatchEvent, 10)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	sctx.Go(func(sctx *stopper.Context) error {
		var timer *time.Timer
		var fired <-chan time.Time
		sctx.Defer(func() {
			if timer != nil {
				timer.Stop()
			}
		})

		send := func(ev WatchEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-sctx.Stopping():
				return false
			}
		}

		// files created between the caller's load and watcher.Add
		if found := l.scanNew(dir, known); len(found) > 0 {
			if !send(WatchEvent{Services: found}) {
				return nil
			}
		}

		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !IsDescriptor(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if known[ServiceName(event.Name)] {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fired = timer.C

			case <-fired:
				fired = nil
				if found := l.scanNew(dir, known); len(found) > 0 {
					if !send(WatchEvent{Services: found}) {
						return nil
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !send(WatchEvent{Err: err}) {
					return nil
				}
			}
		}
	})

	return ch, cleanup, nil
}

// scanNew loads every descriptor in dir whose name is not in known and
// adds the names it loaded to known.
func (l *Loader) scanNew(dir string, known map[string]bool) []*Service {
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger.Warn("watched directory unreadable", "dir", dir, "err", err)
		return nil
	}

	var found []*Service
	for _, entry := range entries {
		if entry.IsDir() || !IsDescriptor(entry.Name()) {
			continue
		}
		name := ServiceName(entry.Name())
		if known[name] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		svc, err := l.LoadFile(path)
		if err != nil {
			l.logger.Debug("descriptor not loadable yet", "path", path, "err", err)
			continue
		}
		known[name] = true
		found = append(found, svc)
	}
	return found
}
