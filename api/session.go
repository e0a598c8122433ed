package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/casualjim/skein/pkg/uuidx"
	"github.com/casualjim/skein/stream"
)

// Isolation selects how much state a new session shares with its parent.
type Isolation int8

const (
	// IsolationDefault reuses host-level state where the interpreter
	// permits it.
	IsolationDefault Isolation = iota
	// IsolationFull gives the session a fully private interpreter state.
	// Parallel task units always run fully isolated.
	IsolationFull
)

// Session is an interpreter context in which units of work execute. The
// execution core treats it as opaque: it opens the session, calls Run on
// the goroutine chosen by the thread policy, and closes it when done.
// Run evaluates the unit synchronously on the calling goroutine; any
// threads the interpreter spawns internally are its own business.
type Session interface {
	ID() uuid.UUID
	Open() error
	Run(ctx context.Context, unit Unit, input *stream.Stream, out Streams) error
	// HadErrors reports whether any unit run in this session recorded a
	// terminal failure.
	HadErrors() bool
	SetHadErrors(v bool)
	Close() error
}

// SessionFactory creates sessions. Each parallel task unit gets its own
// fully isolated session from the pool's factory.
type SessionFactory interface {
	New(isolation Isolation) (Session, error)
}

// Unit is one independently runnable piece of interpreted work. Once
// started it produces stream items and eventually reaches a terminal
// state; the core never looks inside.
type Unit interface {
	ID() uuid.UUID
	Name() string
	// Invoke evaluates the unit body. Sessions call it from whatever
	// goroutine the executor selected, so the three thread policies are
	// indistinguishable from the unit's point of view.
	Invoke(ctx context.Context, input *stream.Stream, out Streams) error
}

type unitFunc struct {
	id   uuid.UUID
	name string
	body func(ctx context.Context, input *stream.Stream, out Streams) error
}

// UnitFunc adapts a closure into a Unit. Mostly useful in tests and
// examples; real interpreters provide their own compiled units.
func UnitFunc(name string, body func(ctx context.Context, input *stream.Stream, out Streams) error) Unit {
	return &unitFunc{id: uuidx.New(), name: name, body: body}
}

func (u *unitFunc) ID() uuid.UUID { return u.id }
func (u *unitFunc) Name() string  { return u.name }

func (u *unitFunc) Invoke(ctx context.Context, input *stream.Stream, out Streams) error {
	return u.body(ctx, input, out)
}

// Streams bundles one stream per channel. The executor constructs the
// bundle, baking the channel-tagging listener into each stream, and hands
// it to the session for the unit to write into.
type Streams struct {
	Output      *stream.Stream
	Error       *stream.Stream
	Warning     *stream.Stream
	Verbose     *stream.Stream
	Debug       *stream.Stream
	Information *stream.Stream
}

// NewStreams builds a bundle whose streams forward every appended item to
// onItem together with the channel it arrived on. onItem may be nil.
func NewStreams(onItem func(Channel, any)) Streams {
	mk := func(c Channel) *stream.Stream {
		if onItem == nil {
			return stream.New(nil)
		}
		return stream.New(func(item any) { onItem(c, item) })
	}
	return Streams{
		Output:      mk(ChannelOutput),
		Error:       mk(ChannelError),
		Warning:     mk(ChannelWarning),
		Verbose:     mk(ChannelVerbose),
		Debug:       mk(ChannelDebug),
		Information: mk(ChannelInformation),
	}
}

// Get returns the stream for the given channel.
func (s Streams) Get(c Channel) *stream.Stream {
	switch c {
	case ChannelError:
		return s.Error
	case ChannelWarning:
		return s.Warning
	case ChannelVerbose:
		return s.Verbose
	case ChannelDebug:
		return s.Debug
	case ChannelInformation:
		return s.Information
	default:
		return s.Output
	}
}

// Close closes every stream in the bundle. Buffered items stay readable.
func (s Streams) Close() {
	for _, c := range Channels {
		if st := s.Get(c); st != nil {
			st.Close()
		}
	}
}
