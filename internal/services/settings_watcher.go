package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/locfudge/internal/settings"
)

// SettingsWatcher polls the settings store and applies every snapshot to a
// CoarseLocationService, so changes made by another process take effect
// without a restart.
type SettingsWatcher struct {
	store    settings.Store
	service  *CoarseLocationService
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewSettingsWatcher creates a watcher. It does nothing until Start.
func NewSettingsWatcher(store settings.Store, service *CoarseLocationService, interval time.Duration) *SettingsWatcher {
	return &SettingsWatcher{
		store:    store,
		service:  service,
		interval: interval,
	}
}

// Poll reads the store once and applies the result.
func (w *SettingsWatcher) Poll(ctx context.Context) error {
	snap, err := settings.Load(ctx, w.store, w.service.Defaults())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	w.service.Apply(ctx, snap)
	return nil
}

// Start begins polling in the background. Polling continues through store
// errors and panics until ctx is cancelled or Stop is called.
func (w *SettingsWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if w.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", w.interval)
	}

	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	logging.Infow(ctx, "Settings watcher: starting", "interval", w.interval)
	go w.pollLoop(ctx, w.stopChan, w.done)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (w *SettingsWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
}

// IsRunning returns whether the watcher is polling
func (w *SettingsWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SettingsWatcher) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pollSafely(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Settings watcher: stopping due to context cancellation")
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-stop:
			logging.Infow(ctx, "Settings watcher: stopped")
			return
		case <-ticker.C:
			w.pollSafely(ctx)
		}
	}
}

func (w *SettingsWatcher) pollSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stack, _ := errors.ParseStack(debug.Stack())
			if stack == nil {
				logging.Errorw(ctx, "Settings watcher: recovered from panic", "error", r)
				return
			}
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Settings watcher: recovered from panic",
				"error", r, "error.stack_trace", stack.MinimalStack(skipFrames, numFrames))
		}
	}()

	if err := w.Poll(ctx); err != nil {
		logging.Errorw(ctx, "Settings watcher: poll failed", "error", err)
	}
}
