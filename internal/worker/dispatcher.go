// Package worker contains the asynchronous generation and render workers and
// the dispatcher that runs them.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher runs worker functions as fire-and-forget tasks. Completion is
// communicated purely through persisted state, never through a return value
// to the caller that dispatched the task.
type Dispatcher struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Dispatch spawns fn on its own goroutine with a background context: the
// task outlives the request that enqueued it. Panics are contained so one
// bad task cannot take the process down.
func (d *Dispatcher) Dispatch(name string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("worker panicked", "worker", name, "panic", r)
			}
		}()
		fn(context.Background())
	}()
}

// Wait blocks until all dispatched tasks have finished. Used at shutdown and
// in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
