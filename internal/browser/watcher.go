package browser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/chatdriver/internal/logging"
)

// DescriptorWatcher reports changes other processes make to the session descriptor.
// onChange receives the new descriptor, or nil when it was removed.
type DescriptorWatcher struct {
	store    *DescriptorStore
	onChange func(*Descriptor)
	logger   *slog.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	cancelCtx context.CancelFunc
	done      chan struct{}
}

// NewDescriptorWatcher creates a watcher for store.
func NewDescriptorWatcher(store *DescriptorStore, onChange func(*Descriptor), logger *slog.Logger) *DescriptorWatcher {
	return &DescriptorWatcher{
		store:    store,
		onChange: onChange,
		logger:   logging.Component(logger, "descriptor-watcher"),
	}
}

// Start begins watching. The descriptor is replaced by rename, so the parent
// directory is watched and events are filtered by name.
func (w *DescriptorWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.store.Path()), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancelCtx = cancel
	w.done = make(chan struct{})

	go w.watchLoop(ctx, watcher, w.done)
	return nil
}

func (w *DescriptorWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	target := filepath.Clean(w.store.Path())
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
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *DescriptorWatcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename onto the path shows up as Create; a rename away means it is gone.
		desc, err := w.store.Load()
		if err != nil || desc == nil {
			w.onChange(nil)
			return
		}
		w.onChange(desc)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		desc, err := w.store.Load()
		if err != nil {
			// Partially written; the next event carries the final content.
			w.logger.Debug("descriptor not readable yet", "error", err)
			return
		}
		w.onChange(desc)
	}
}

// Stop ends the watch and waits for the loop to exit.
func (w *DescriptorWatcher) Stop() {
	w.mu.Lock()
	watcher, cancel, done := w.watcher, w.cancelCtx, w.done
	w.watcher, w.cancelCtx, w.done = nil, nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Close()
	}
	if done != nil {
		<-done
	}
}
