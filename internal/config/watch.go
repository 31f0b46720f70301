package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ListsWatcher monitors the lists folder and invokes the supplied callback
// whenever a per-kind list file changes. Stop must be called to release
// filesystem resources.
type ListsWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *ListsWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchLists wires fsnotify around the lists folder and re-reads the whole
// folder on any relevant change. The initial load happens synchronously so a
// successful return guarantees onChange ran once; a failed reload later keeps
// the previous generation and only reports through onError.
func WatchLists(ctx context.Context, folder string, onChange func(map[string][]string), onError func(error)) (*ListsWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch lists requires a change callback")
	}
	if folder == "" {
		return nil, fmt.Errorf("config: no lists folder configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch lists: %w", err)
	}

	raw, err := LoadListFiles(folder)
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch lists close: %w", closeErr))
		}
		cancel()
		return nil, err
	}
	onChange(raw)

	if err := watcher.Add(filepath.Clean(folder)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch lists close: %w", closeErr))
		}
		cancel()
		return nil, fmt.Errorf("config: watch add %s: %w", folder, err)
	}

	done := make(chan struct{})
	watch := &ListsWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch lists close: %w", err))
			}
		}()

		reload := func() {
			raw, err := LoadListFiles(folder)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(raw)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		flushTimer := func() {
			if reloadTimer == nil {
				return
			}
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadSignal = nil
		}
		defer flushTimer()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				flushTimer()
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isListFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
					continue
				}
				scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
