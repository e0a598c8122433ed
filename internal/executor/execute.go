package executor

import (
	"errors"

	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/uuidx"
	"github.com/casualjim/skein/stream"
)

// ThreadPolicy selects which goroutine runs a pipeline. The policies are
// indistinguishable from the unit's point of view: same terminal state,
// same ordered output for deterministic input.
type ThreadPolicy int8

const (
	// DedicatedThread runs the unit on a freshly spawned goroutine that
	// exits when the unit completes. The source system sized these
	// threads with a fixed large stack for deep interpreter recursion;
	// goroutine stacks grow on demand, so no sizing knob is needed here.
	DedicatedThread ThreadPolicy = iota
	// ReusedThread hands the unit to the executor's long-lived worker.
	// Sequential units serialize onto that one goroutine.
	ReusedThread
	// CurrentThread runs the unit inline on the caller's goroutine. Used
	// for nesting, where a unit started from inside another running unit
	// must not spawn.
	CurrentThread
)

func (p ThreadPolicy) String() string {
	switch p {
	case DedicatedThread:
		return "dedicated"
	case ReusedThread:
		return "reused"
	case CurrentThread:
		return "current"
	default:
		return "unknown"
	}
}

// PipelineCommand bundles everything needed to run one unit of work to a
// terminal state.
type PipelineCommand struct {
	id      uuid.UUID
	Session api.Session
	Unit    api.Unit
	Input   *stream.Stream
	Policy  ThreadPolicy
	OnItem  func(api.Channel, any)
}

// NewPipelineCommand validates the collaborators and returns a command
// with a fresh identity and the DedicatedThread policy.
func NewPipelineCommand(session api.Session, unit api.Unit) (PipelineCommand, error) {
	var err error
	if session == nil {
		err = errors.Join(err, errors.New("session is required"))
	}
	if unit == nil {
		err = errors.Join(err, errors.New("unit is required"))
	}
	if err != nil {
		return PipelineCommand{}, err
	}

	return PipelineCommand{
		id:      uuidx.New(),
		Session: session,
		Unit:    unit,
	}, nil
}

// ID returns the command's identity, shared with the unit's stop frame.
func (c *PipelineCommand) ID() uuid.UUID { return c.id }

func (c *PipelineCommand) Validate() error {
	if c.Session == nil {
		return errors.New("session cannot be nil")
	}
	if c.Unit == nil {
		return errors.New("unit cannot be nil")
	}
	return nil
}

// WithInput attaches an upstream input stream. A nil input is replaced
// with an already closed, empty stream at run time.
func (c PipelineCommand) WithInput(input *stream.Stream) PipelineCommand {
	c.Input = input
	return c
}

// WithPolicy selects the thread policy.
func (c PipelineCommand) WithPolicy(policy ThreadPolicy) PipelineCommand {
	c.Policy = policy
	return c
}

// WithItemListener registers the channel-tagged item listener baked into
// the unit's streams.
func (c PipelineCommand) WithItemListener(onItem func(api.Channel, any)) PipelineCommand {
	c.OnItem = onItem
	return c
}
