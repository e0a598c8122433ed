package skein

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fogfish/opts"
	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/uuidx"
	"github.com/casualjim/skein/pubsub"
	"github.com/casualjim/skein/stream"
)

// StateListener observes a task unit's transitions. Terminal
// notifications arrive on the goroutine that ran the unit; listeners
// must not block.
type StateListener func(ctx context.Context, task *Task, state api.ExecutionState, failure error)

// Task is one independently scheduled body of concurrent work, such as a
// single iteration of a parallel loop. It owns a fully isolated session,
// starts it asynchronously and fans the unit's channel-tagged records
// into the shared sink.
//
// The state listener is registered at construction; there is no
// subscribe/unsubscribe surface, so completion notifications cannot race
// a listener swap.
type Task struct {
	id      uuid.UUID
	factory api.SessionFactory
	unit    api.Unit
	sink    *pubsub.Sink
	onState StateListener
	input   *stream.Stream

	state   atomic.Int32
	started atomic.Bool

	mu      sync.Mutex
	failure error
	stopped bool
	cancel  context.CancelFunc
}

var (
	// OnTaskState registers the transition listener.
	OnTaskState = opts.ForName[Task, StateListener]("onState")
	// WithTaskInput attaches an upstream input stream. Defaults to a
	// closed, empty stream.
	WithTaskInput = opts.ForName[Task, *stream.Stream]("input")
)

// NewTask builds an unstarted task unit.
func NewTask(factory api.SessionFactory, unit api.Unit, sink *pubsub.Sink, options ...opts.Option[Task]) *Task {
	t := &Task{
		id:      uuidx.New(),
		factory: factory,
		unit:    unit,
		sink:    sink,
	}
	if err := opts.Apply(t, options); err != nil {
		panic(err)
	}
	if t.input == nil {
		t.input = stream.New(nil)
		t.input.Close()
	}
	t.state.Store(int32(api.StateNotStarted))
	return t
}

// ID returns the task's identity; every record it emits is tagged with
// it.
func (t *Task) ID() uuid.UUID { return t.id }

// Name returns the underlying unit's name.
func (t *Task) Name() string { return t.unit.Name() }

// State returns the current execution state.
func (t *Task) State() api.ExecutionState {
	return api.ExecutionState(t.state.Load())
}

// Failure returns the terminal failure, if any.
func (t *Task) Failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Start begins asynchronous evaluation in a fresh isolated session. A
// stop requested before Start moves the task straight to StateStopped
// without running the unit. Calling Start twice is a programming error
// and panics.
func (t *Task) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("task %s started twice", t.id))
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.transition(ctx, api.StateStopped, nil)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.transition(runCtx, api.StateRunning, nil)
	go t.run(runCtx)
}

// SignalStop requests cooperative cancellation of the running session.
// It does not block for completion and is safe to call repeatedly, or
// before Start: the stop is latched, and Start observes it.
func (t *Task) SignalStop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()

	t.input.ForceClose()
	if cancel != nil {
		cancel()
	}
}

func (t *Task) run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			t.fail(ctx, fmt.Errorf("task %s panicked: %v", t.id, rec))
		}
	}()

	session, err := t.factory.New(api.IsolationFull)
	if err != nil {
		t.fail(ctx, fmt.Errorf("creating session: %w", err))
		return
	}
	if err := session.Open(); err != nil {
		t.fail(ctx, fmt.Errorf("opening session: %w", err))
		return
	}
	defer func() { _ = session.Close() }()

	out := api.NewStreams(func(channel api.Channel, item any) {
		t.sink.Append(api.Record{TaskID: t.id, Channel: channel, Value: item})
	})

	failure := session.Run(ctx, t.unit, t.input, out)
	out.Close()

	var exitErr api.ExitError
	switch {
	case failure == nil:
		t.transition(ctx, api.StateCompleted, nil)

	case errors.As(failure, &exitErr):
		// An exit request from a parallel iteration cannot reach the
		// host; the iteration just ends.
		t.transition(ctx, api.StateCompleted, nil)

	case api.IsStop(failure),
		errors.Is(failure, context.Canceled),
		errors.Is(failure, stream.ErrInterrupted),
		ctx.Err() != nil:
		t.transition(ctx, api.StateStopped, nil)

	default:
		t.fail(ctx, failure)
	}
}

// fail records the terminal failure, converts it into an error record
// correlated to this task's identity, and transitions to StateFailed.
// The failure is never rethrown: one failing unit must not interrupt its
// siblings.
func (t *Task) fail(ctx context.Context, failure error) {
	t.mu.Lock()
	t.failure = failure
	t.mu.Unlock()

	t.sink.AppendFailure(t.id, failure)
	t.transition(ctx, api.StateFailed, failure)
}

func (t *Task) transition(ctx context.Context, next api.ExecutionState, failure error) {
	for {
		current := api.ExecutionState(t.state.Load())
		if current.Terminal() {
			// Terminal states never change again.
			return
		}
		if t.state.CompareAndSwap(int32(current), int32(next)) {
			break
		}
	}

	t.sink.AnnounceState(t.id, next, failure)
	if t.onState != nil {
		t.onState(ctx, t, next, failure)
	}
}
