package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/slogx"
	"github.com/casualjim/skein/stream"
)

// HostCapabilities is the optional platform surface the executor calls
// into when a unit requests process exit. Absent by default; core logic
// must not assume it exists.
type HostCapabilities interface {
	OnExitRequest(ctx context.Context, code int)
}

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	State api.ExecutionState
	// ExitCode is set when the unit asked the host to terminate. An exit
	// request is a distinct terminal carrying a code, not a failure.
	ExitCode *int
	Failure  error
}

// Pipeline is the handle for one unit of work moving to a terminal
// state. Ownership of the unit stays with the executor until a terminal
// state has been observed through Wait.
type Pipeline struct {
	cmd     PipelineCommand
	input   *stream.Stream
	streams api.Streams
	frame   *Frame
	signal  *Signal
	cancel  context.CancelFunc

	mu      sync.Mutex
	outcome *Outcome
}

// ID returns the pipeline's identity.
func (p *Pipeline) ID() uuid.UUID { return p.cmd.ID() }

// Streams exposes the unit's output streams. Valid for the lifetime of
// the handle; streams are closed (not discarded) at completion, so
// buffered items remain readable afterwards.
func (p *Pipeline) Streams() api.Streams { return p.streams }

// Done exposes the completion latch for select statements.
func (p *Pipeline) Done() <-chan struct{} { return p.signal.Done() }

// Wait blocks until the unit reaches a terminal state and returns the
// outcome. The ctx bounds the wait only; the pipeline itself keeps
// running if ctx fires first. A pipeline that is already terminal always
// yields its outcome, even when ctx is done too.
func (p *Pipeline) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-p.signal.Done():
		return p.Outcome(), nil
	default:
	}
	select {
	case <-p.signal.Done():
		return p.Outcome(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the terminal outcome, or nil while still running.
func (p *Pipeline) Outcome() *Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

func (p *Pipeline) setOutcome(o *Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcome == nil {
		p.outcome = o
	}
}

type sessionState struct {
	stack  *StopStack
	active *haxmap.Map[string, *Pipeline]
}

// Local runs pipelines in-process under one of the three thread
// policies. It keeps one stop stack per session, so nested units started
// in the same session share cancellation, and one lazily started
// reusable worker for the ReusedThread policy.
type Local struct {
	sessions *haxmap.Map[string, *sessionState]
	host     HostCapabilities

	workerMu sync.Mutex
	worker   *ReusableWorker
}

// NewLocal returns an executor. host may be nil.
func NewLocal(host HostCapabilities) *Local {
	return &Local{
		sessions: haxmap.New[string, *sessionState](),
		host:     host,
	}
}

func (l *Local) stateFor(sessionID uuid.UUID) *sessionState {
	st, _ := l.sessions.GetOrCompute(sessionID.String(), func() *sessionState {
		return &sessionState{
			stack:  NewStopStack(),
			active: haxmap.New[string, *Pipeline](),
		}
	})
	return st
}

func (l *Local) workerFor() *ReusableWorker {
	l.workerMu.Lock()
	defer l.workerMu.Unlock()
	if l.worker == nil || l.worker.Closed() {
		l.worker = NewReusableWorker()
	}
	return l.worker
}

// Run executes the command to a terminal state and returns the outcome.
// A cooperative stop yields Outcome.State == StateStopped, not an error;
// the error return covers misuse and wait interruption only.
func (l *Local) Run(ctx context.Context, cmd PipelineCommand) (*Outcome, error) {
	p, err := l.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Start registers the unit with its session's stop stack and schedules
// it under the command's thread policy. When registration fails because
// the session is stopping, the returned handle is already terminal with
// a "stopped before start" outcome; the unit never ran.
func (l *Local) Start(ctx context.Context, cmd PipelineCommand) (*Pipeline, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	st := l.stateFor(cmd.Session.ID())

	input := cmd.Input
	if input == nil {
		input = stream.New(nil)
		input.Close()
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		cmd:     cmd,
		input:   input,
		streams: api.NewStreams(cmd.OnItem),
		cancel:  cancel,
	}
	p.signal = NewSignal(func(error) {
		st.active.Del(p.cmd.ID().String())
	})

	// The frame's stop function unblocks a unit waiting on upstream
	// input by force closing the source, then cancels the run context.
	// It must not block: Stop calls it outside the stack lock but on the
	// stopping goroutine.
	p.frame = NewFrame(cmd.ID(), func() {
		input.ForceClose()
		cancel()
	})

	if err := st.stack.Push(p.frame); err != nil {
		cancel()
		failure := api.StopError{BeforeStart: true}
		p.setOutcome(&Outcome{State: api.StateStopped, Failure: failure})
		p.signal.Complete(failure)
		return p, nil
	}
	st.active.Set(cmd.ID().String(), p)

	switch cmd.Policy {
	case CurrentThread:
		l.execute(runCtx, st, p)
	case ReusedThread:
		if err := l.workerFor().Submit(func(wctx context.Context) {
			l.execute(withWorkerMarker(runCtx, wctx), st, p)
		}); err != nil {
			st.stack.Pop(p.frame)
			cancel()
			p.setOutcome(&Outcome{State: api.StateFailed, Failure: err})
			p.signal.Complete(err)
			return p, nil
		}
	default:
		go l.execute(runCtx, st, p)
	}
	return p, nil
}

// execute runs the unit body on the current goroutine and converts its
// result into a terminal outcome. Every exit path pops the frame exactly
// once, closes the streams and completes the signal.
func (l *Local) execute(ctx context.Context, st *sessionState, p *Pipeline) {
	defer p.cancel()

	started := time.Now()
	var failure error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				failure = fmt.Errorf("unit %s panicked: %v", p.cmd.Unit.Name(), rec)
			}
		}()
		failure = p.cmd.Session.Run(ctx, p.cmd.Unit, p.input, p.streams)
	}()

	outcome, sigErr := l.classify(ctx, st, p, failure)
	slog.DebugContext(ctx, "unit finished",
		slog.String("unit", p.cmd.Unit.Name()),
		slogx.Stringer("state", outcome.State),
		slogx.Duration("elapsed", time.Since(started)),
	)

	st.stack.Pop(p.frame)
	p.streams.Close()
	p.setOutcome(outcome)
	p.signal.Complete(sigErr)
}

// classify reconciles the unit's result with session cancellation. A
// failure raised while the unit was unwinding from a stop never masks
// the stop outcome.
func (l *Local) classify(ctx context.Context, st *sessionState, p *Pipeline, failure error) (*Outcome, error) {
	var exitErr api.ExitError

	switch {
	case failure == nil:
		return &Outcome{State: api.StateCompleted}, nil

	case errors.As(failure, &exitErr):
		if l.host != nil {
			l.host.OnExitRequest(ctx, exitErr.Code)
		}
		code := exitErr.Code
		return &Outcome{State: api.StateCompleted, ExitCode: &code}, nil

	case st.stack.Stopping(),
		api.IsStop(failure),
		errors.Is(failure, context.Canceled),
		errors.Is(failure, stream.ErrInterrupted):
		return &Outcome{State: api.StateStopped, Failure: api.StopError{}}, api.StopError{}

	default:
		p.cmd.Session.SetHadErrors(true)
		slog.DebugContext(ctx, "unit failed",
			slog.String("unit", p.cmd.Unit.Name()),
			slogx.Error(failure),
		)
		return &Outcome{State: api.StateFailed, Failure: failure}, failure
	}
}

// StopPipeline requests a cooperative stop of every unit registered in
// the session and blocks until they have all reached a terminal state,
// or ctx fires. Units not yet started observe the stop at registration
// and never run.
func (l *Local) StopPipeline(ctx context.Context, session api.Session) error {
	st, ok := l.sessions.Get(session.ID().String())
	if !ok {
		return nil
	}
	st.stack.Stop()

	var waitErr error
	st.active.ForEach(func(_ string, p *Pipeline) bool {
		select {
		case <-p.signal.Done():
			return true
		case <-ctx.Done():
			waitErr = ctx.Err()
			return false
		}
	})
	return waitErr
}

// ReleaseSession drops the executor's bookkeeping for the session. The
// owner calls this after tearing the session down.
func (l *Local) ReleaseSession(session api.Session) {
	l.sessions.Del(session.ID().String())
}

// Shutdown closes the reusable worker. In-flight work finishes first.
func (l *Local) Shutdown(ctx context.Context) {
	l.workerMu.Lock()
	w := l.worker
	l.worker = nil
	l.workerMu.Unlock()
	if w != nil {
		w.Close(ctx)
	}
}
