package skein

import (
	"context"
	"errors"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/internal/executor"
	"github.com/casualjim/skein/stream"
)

// ThreadPolicy selects which goroutine runs a pipeline. The three
// policies produce the same terminal state and the same ordered output
// for deterministic input; the difference is purely where the work
// lands.
type ThreadPolicy int8

const (
	// DedicatedThread runs the unit on a freshly spawned goroutine.
	DedicatedThread ThreadPolicy = iota
	// ReusedThread serializes the unit onto the runner's long-lived
	// worker goroutine, avoiding a per-unit spawn for sequential runs.
	ReusedThread
	// CurrentThread runs the unit inline, for nested invocations that
	// must not leave the caller's goroutine.
	CurrentThread
)

func (p ThreadPolicy) String() string {
	return executor.ThreadPolicy(p).String()
}

// Host is the optional platform capability the runner notifies when a
// unit requests process exit. Absent by default.
type Host = executor.HostCapabilities

// Runner is the single-pipeline execution surface: it runs one unit of
// work to a terminal state under a thread policy, and reconciles
// interpreter flow-control signals with session cancellation.
type Runner struct {
	factory api.SessionFactory
	host    Host
	exec    *executor.Local
}

var (
	// WithSessionFactory sets the factory sessions are created from.
	WithSessionFactory = opts.ForName[Runner, api.SessionFactory]("factory")
	// WithHost injects the optional host capability surface.
	WithHost = opts.ForName[Runner, Host]("host")
)

// NewRunner builds a runner. A session factory is required before
// NewSession is usable; runs against externally constructed sessions
// work without one.
func NewRunner(options ...opts.Option[Runner]) *Runner {
	r := &Runner{}
	if err := opts.Apply(r, options); err != nil {
		panic(err)
	}
	r.exec = executor.NewLocal(r.host)
	return r
}

// NewSession creates and opens a session from the configured factory.
func (r *Runner) NewSession(isolation api.Isolation) (api.Session, error) {
	if r.factory == nil {
		return nil, errors.New("runner has no session factory")
	}
	session, err := r.factory.New(isolation)
	if err != nil {
		return nil, err
	}
	if err := session.Open(); err != nil {
		return nil, err
	}
	return session, nil
}

// pipelineSettings is the per-invocation configuration.
type pipelineSettings struct {
	policy ThreadPolicy
	input  *stream.Stream
	onItem func(api.Channel, any)
}

var (
	// WithPolicy selects the thread policy for one run.
	WithPolicy = opts.ForName[pipelineSettings, ThreadPolicy]("policy")
	// WithInput attaches an upstream input stream.
	WithInput = opts.ForName[pipelineSettings, *stream.Stream]("input")
	// WithItemListener taps every item the unit emits, tagged with its
	// channel. The listener is baked into the unit's streams at
	// construction and runs on the producing goroutine.
	WithItemListener = opts.ForName[pipelineSettings, func(api.Channel, any)]("onItem")
)

// PipelineOption configures one pipeline invocation.
type PipelineOption = opts.Option[pipelineSettings]

// PipelineResult is the terminal outcome of a pipeline run.
type PipelineResult struct {
	State api.ExecutionState
	// ExitCode is set when the unit asked the host to terminate; an exit
	// request is not a failure.
	ExitCode *int
	Failure  error
	// Streams holds the unit's closed output streams; buffered items
	// remain readable.
	Streams api.Streams
}

// Stopped reports whether the run ended in a cooperative stop. A stopped
// pipeline reports "stopped", never an error stack.
func (r *PipelineResult) Stopped() bool {
	return r.State == api.StateStopped
}

// PipelineHandle tracks an asynchronously started pipeline.
type PipelineHandle struct {
	inner *executor.Pipeline
}

// Streams exposes the unit's streams while it runs.
func (h *PipelineHandle) Streams() api.Streams { return h.inner.Streams() }

// Done is closed when the unit reaches a terminal state.
func (h *PipelineHandle) Done() <-chan struct{} { return h.inner.Done() }

// Wait blocks until terminal and returns the result. ctx bounds the wait
// only, not the unit.
func (h *PipelineHandle) Wait(ctx context.Context) (*PipelineResult, error) {
	outcome, err := h.inner.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &PipelineResult{
		State:    outcome.State,
		ExitCode: outcome.ExitCode,
		Failure:  outcome.Failure,
		Streams:  h.inner.Streams(),
	}, nil
}

func (r *Runner) command(session api.Session, unit api.Unit, options []PipelineOption) (executor.PipelineCommand, error) {
	var settings pipelineSettings
	if err := opts.Apply(&settings, options); err != nil {
		return executor.PipelineCommand{}, err
	}

	cmd, err := executor.NewPipelineCommand(session, unit)
	if err != nil {
		return executor.PipelineCommand{}, err
	}
	cmd = cmd.WithPolicy(executor.ThreadPolicy(settings.policy))
	if settings.input != nil {
		cmd = cmd.WithInput(settings.input)
	}
	if settings.onItem != nil {
		cmd = cmd.WithItemListener(settings.onItem)
	}
	return cmd, nil
}

// RunPipeline runs the unit to a terminal state and returns the result.
// Cooperative stops come back as a result with State == StateStopped,
// not as an error.
func (r *Runner) RunPipeline(ctx context.Context, session api.Session, unit api.Unit, options ...PipelineOption) (*PipelineResult, error) {
	handle, err := r.StartPipeline(ctx, session, unit, options...)
	if err != nil {
		return nil, err
	}
	return handle.Wait(ctx)
}

// StartPipeline registers and schedules the unit, returning immediately
// with a handle. When the session is already stopping the handle is
// terminal at once with a "stopped before start" result; the unit never
// ran.
func (r *Runner) StartPipeline(ctx context.Context, session api.Session, unit api.Unit, options ...PipelineOption) (*PipelineHandle, error) {
	cmd, err := r.command(session, unit, options)
	if err != nil {
		return nil, err
	}
	p, err := r.exec.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &PipelineHandle{inner: p}, nil
}

// StopPipeline requests a cooperative stop of every unit running in the
// session, including nested ones and ones registered but not yet
// started, and blocks until they are all terminal or ctx fires.
func (r *Runner) StopPipeline(ctx context.Context, session api.Session) error {
	return r.exec.StopPipeline(ctx, session)
}

// ReleaseSession closes the session and drops the runner's bookkeeping
// for it.
func (r *Runner) ReleaseSession(session api.Session) error {
	err := session.Close()
	r.exec.ReleaseSession(session)
	return err
}

// Close retires the runner's reusable worker. In-flight work finishes
// first.
func (r *Runner) Close(ctx context.Context) {
	r.exec.Shutdown(ctx)
}

// RunFuture starts the unit asynchronously and returns a typed future
// over its aggregated output-channel items, decoded into T on first Get.
func RunFuture[T any](ctx context.Context, r *Runner, session api.Session, unit api.Unit, options ...PipelineOption) (Future[T], error) {
	var outputs []any
	collect := func(c api.Channel, item any) {
		if c == api.ChannelOutput {
			outputs = append(outputs, item)
		}
	}
	options = append(options, WithItemListener(collect))

	handle, err := r.StartPipeline(ctx, session, unit, options...)
	if err != nil {
		return nil, err
	}

	promise, future := NewFuture[T]()
	go func() {
		result, werr := handle.Wait(context.Background())
		switch {
		case werr != nil:
			promise.Error(werr)
		case result.State == api.StateFailed:
			promise.Error(result.Failure)
		case result.Stopped():
			promise.Error(api.StopError{})
		default:
			data, merr := marshalOutputs(outputs)
			if merr != nil {
				promise.Error(merr)
				return
			}
			promise.Complete(data)
		}
	}()
	return future, nil
}

func marshalOutputs(outputs []any) (string, error) {
	data, err := json.Marshal(outputs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
