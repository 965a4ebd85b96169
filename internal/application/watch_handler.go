package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/dcov/internal/domain"
)

// RunFunc performs one complete coverage run.
type RunFunc func(ctx context.Context) (domain.Result, error)

// WatchHandler re-runs coverage whenever sources change.
type WatchHandler struct {
	Root    string
	Watcher FileWatcher
	Run     RunFunc
}

// Watch runs once, then again after every batch of file events, until ctx
// is done or the watcher stops.
func (h *WatchHandler) Watch(ctx context.Context, callback WatchCallback) error {
	if err := h.Watcher.WatchDir(h.Root); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	runNumber := 1
	result, runErr := h.Run(ctx)
	if callback != nil {
		callback(runNumber, result, runErr)
	}

	events := h.Watcher.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			runNumber++
			result, runErr := h.Run(ctx)
			if callback != nil {
				callback(runNumber, result, runErr)
			}
		}
	}
}
