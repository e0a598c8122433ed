package executor

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrWorkerClosed is returned by Submit after the worker's loop has been
// told to exit.
var ErrWorkerClosed = errors.New("worker is closed")

type workerKey struct{}

// ReusableWorker is a long-lived goroutine that executes work items one
// at a time from a single-slot handoff. Many sequential units share the
// worker without paying a per-unit spawn; at most one item is ever in
// flight, which is what serializes them.
type ReusableWorker struct {
	handoff chan func(context.Context)
	cancel  context.CancelFunc
	stopped chan struct{}
	closed  atomic.Bool
}

// NewReusableWorker starts the worker loop immediately.
func NewReusableWorker() *ReusableWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &ReusableWorker{
		handoff: make(chan func(context.Context)),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go w.runLoop(ctx)
	return w
}

func (w *ReusableWorker) runLoop(ctx context.Context) {
	defer close(w.stopped)

	// Work items can tell they are on the worker goroutine through the
	// context; Close uses that to avoid joining on itself.
	runCtx := context.WithValue(ctx, workerKey{}, w)

	for {
		select {
		case item := <-w.handoff:
			item(runCtx)
		case <-ctx.Done():
			return
		}
	}
}

// Submit hands one work item to the worker and returns once the worker
// has accepted it. The item runs on the worker goroutine; completion is
// the item's own business, typically signaled through a Signal it closes
// over. Returns ErrWorkerClosed when the loop is gone.
func (w *ReusableWorker) Submit(item func(context.Context)) error {
	if w.closed.Load() {
		return ErrWorkerClosed
	}
	select {
	case w.handoff <- item:
		return nil
	case <-w.stopped:
		return ErrWorkerClosed
	}
}

// Close signals the loop to exit and waits for the in-flight item to
// finish. When called from the worker goroutine itself (detected via the
// context value planted by runLoop) it skips the join, so a work item may
// close its own worker without deadlocking.
func (w *ReusableWorker) Close(ctx context.Context) {
	w.closed.Store(true)
	w.cancel()
	if FromWorkerContext(ctx) == w {
		return
	}
	<-w.stopped
}

// Closed reports whether the worker no longer accepts items.
func (w *ReusableWorker) Closed() bool {
	return w.closed.Load()
}

// FromWorkerContext returns the worker owning the goroutine the context
// belongs to, or nil when the context did not come from a worker loop.
func FromWorkerContext(ctx context.Context) *ReusableWorker {
	if ctx == nil {
		return nil
	}
	w, _ := ctx.Value(workerKey{}).(*ReusableWorker)
	return w
}

// withWorkerMarker copies the worker marker from the loop's context onto
// ctx, so that code running under ctx on the worker goroutine can be
// recognized by Close. Returns ctx unchanged when loop carries no marker.
func withWorkerMarker(ctx, loop context.Context) context.Context {
	if w := FromWorkerContext(loop); w != nil {
		return context.WithValue(ctx, workerKey{}, w)
	}
	return ctx
}
