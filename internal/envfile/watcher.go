package envfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// Watcher monitors an env file and invokes a callback after changes settle.
type Watcher struct {
	path     string
	onChange func()
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopChan chan struct{}
	changed  chan struct{}
	debounce time.Duration
	stopped  bool
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for path. onChange runs on the watcher goroutine.
func NewWatcher(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		path:     absPath,
		onChange: onChange,
		watcher:  w,
		stopChan: make(chan struct{}),
		changed:  make(chan struct{}, 1),
		debounce: debounce,
	}, nil
}

// Start begins watching. The directory is watched rather than the file because
// atomic writes replace the file's inode.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	slog.Debug("Watching config file", logfields.Path(w.path))

	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.notifyLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutines. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopChan)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				select {
				case w.changed <- struct{}{}:
				default:
				}
			case event.Op&fsnotify.Remove != 0:
				slog.Warn("Config file removed", logfields.Path(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) notifyLoop(ctx context.Context) {
	defer w.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.changed:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
