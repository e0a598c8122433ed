package skein

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pubsub"
)

// PoolStats is a point-in-time snapshot of a pool's accounting, consumed
// by the prometheus exporter and by owners driving UI.
type PoolStats struct {
	Name      string
	Size      int
	Active    int
	Submitted uint64
	Completed uint64
	Failed    uint64
	Stopped   uint64
	Rejected  uint64
	Closed    bool
	Finalized bool
}

// TaskCompleteFunc is invoked after the pool has accounted a task's
// terminal state. It runs on the goroutine that ran the task.
type TaskCompleteFunc func(ctx context.Context, task *Task)

// Pool is an admission-controlled fan-out of task units with a hard
// concurrency ceiling. Add is designed for a single producer goroutine;
// it blocks while the pool is full and unblocks within one completion
// cycle of a slot freeing. Once the pool is closed and the last active
// unit completes, the shared sink is finalized exactly once.
type Pool struct {
	name    string
	size    int
	factory api.SessionFactory
	sink    *pubsub.Sink

	slots    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool

	active      *haxmap.Map[string, *Task]
	activeCount atomic.Int32

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	stopped   atomic.Uint64
	rejected  atomic.Uint64

	finalizeMu sync.Mutex
	finalized  bool

	promise    Promise
	onFinalize func(context.Context)
	onComplete TaskCompleteFunc
}

var (
	// WithPoolName names the pool in stats and metrics.
	WithPoolName = opts.ForName[Pool, string]("name")
	// WithPromise is settled with the sink's aggregated output JSON when
	// the pool finalizes.
	WithPromise = opts.ForName[Pool, Promise]("promise")
	// WithOnFinalize runs once, right after the sink finalizes.
	WithOnFinalize = opts.ForName[Pool, func(context.Context)]("onFinalize")
	// OnTaskComplete is notified after each task's terminal bookkeeping.
	OnTaskComplete = opts.ForName[Pool, TaskCompleteFunc]("onComplete")
)

// NewPool builds a pool admitting at most size concurrent task units.
// Panics when size < 1: a pool that cannot admit anything is a
// programming error.
func NewPool(size int, factory api.SessionFactory, sink *pubsub.Sink, options ...opts.Option[Pool]) *Pool {
	if size < 1 {
		panic("pool size must be at least 1")
	}

	p := &Pool{
		name:    "pool",
		size:    size,
		factory: factory,
		sink:    sink,
		slots:   make(chan struct{}, size),
		stopCh:  make(chan struct{}),
		active:  haxmap.New[string, *Task](),
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	if p.promise == nil {
		p.promise = noopPromise{}
	}

	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Sink returns the shared destination the pool's units multiplex into.
func (p *Pool) Sink() *pubsub.Sink { return p.sink }

// Size returns the admission ceiling.
func (p *Pool) Size() int { return p.size }

// Active returns the number of currently running units.
func (p *Pool) Active() int { return int(p.activeCount.Load()) }

// Add admits one unit of work. It returns false immediately when the
// pool is closed; otherwise it blocks the producer until a slot frees or
// the pool is told to stop, whichever wins. On success the unit is
// started in its own isolated session and true is returned.
//
// Add is meant for a single producer goroutine; it is not safe for
// concurrent producers.
func (p *Pool) Add(ctx context.Context, unit api.Unit) bool {
	if p.closed.Load() {
		p.rejected.Add(1)
		return false
	}

	select {
	case <-p.slots:
	case <-p.stopCh:
		p.rejected.Add(1)
		return false
	case <-ctx.Done():
		p.rejected.Add(1)
		return false
	}

	// Stop-all may have won the race for the same wakeup; give the slot
	// back instead of starting a unit nobody wants.
	select {
	case <-p.stopCh:
		p.slots <- struct{}{}
		p.rejected.Add(1)
		return false
	default:
	}

	task := NewTask(p.factory, unit, p.sink, OnTaskState(p.bookkeeping))
	p.active.Set(task.ID().String(), task)
	p.activeCount.Add(1)
	p.submitted.Add(1)

	task.Start(ctx)
	return true
}

// bookkeeping is the completion listener registered on every admitted
// task. It runs on an arbitrary goroutine: deregister the unit, release
// its admission slot (waking a blocked producer when the pool was full),
// and re-check the finalize condition.
func (p *Pool) bookkeeping(ctx context.Context, task *Task, state api.ExecutionState, _ error) {
	if !state.Terminal() {
		return
	}
	if _, ok := p.active.Get(task.ID().String()); !ok {
		return
	}
	p.active.Del(task.ID().String())
	p.activeCount.Add(-1)

	switch state {
	case api.StateFailed:
		p.failed.Add(1)
	case api.StateStopped:
		p.stopped.Add(1)
	default:
		p.completed.Add(1)
	}

	p.slots <- struct{}{}

	if p.onComplete != nil {
		p.onComplete(ctx, task)
	}
	p.maybeFinalize(ctx)
}

// Close marks the pool closed to new Add calls. When no units are
// active the sink finalizes immediately; otherwise the last completion
// does it.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.maybeFinalize(context.Background())
}

// StopAll closes the pool, releases a producer blocked in Add, and
// requests a cooperative stop on every active unit. Units are not
// force-killed; the sink finalizes once they have wound down.
func (p *Pool) StopAll() {
	p.closed.Store(true)
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.active.ForEach(func(_ string, task *Task) bool {
		task.SignalStop()
		return true
	})
	p.maybeFinalize(context.Background())
}

// maybeFinalize finalizes the sink when the pool is closed and drained.
// The check runs under the finalize lock so that a racing Close and last
// completion cannot both finalize.
func (p *Pool) maybeFinalize(ctx context.Context) {
	p.finalizeMu.Lock()
	defer p.finalizeMu.Unlock()
	if p.finalized || !p.closed.Load() || p.activeCount.Load() != 0 {
		return
	}
	p.finalized = true

	data, err := p.sink.OutputJSON()
	if err != nil {
		p.promise.Error(err)
	} else {
		p.promise.Complete(data)
	}
	p.sink.Finalize()
	if p.onFinalize != nil {
		p.onFinalize(ctx)
	}
}

// Stats returns a point-in-time snapshot of the pool's accounting.
func (p *Pool) Stats() PoolStats {
	p.finalizeMu.Lock()
	finalized := p.finalized
	p.finalizeMu.Unlock()

	return PoolStats{
		Name:      p.name,
		Size:      p.size,
		Active:    int(p.activeCount.Load()),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Stopped:   p.stopped.Load(),
		Rejected:  p.rejected.Load(),
		Closed:    p.closed.Load(),
		Finalized: finalized,
	}
}
