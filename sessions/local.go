// Package sessions carries a minimal in-process Session implementation.
// It is the reference collaborator used by the examples and by embedders
// that drive the execution core with plain Go closures instead of a full
// interpreter.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/slogx"
	"github.com/casualjim/skein/pkg/uuidx"
	"github.com/casualjim/skein/stream"
)

// Factory creates Local sessions.
type Factory struct{}

// NewFactory returns a factory producing Local sessions.
func NewFactory() *Factory { return &Factory{} }

// New implements api.SessionFactory. Every session is private state, so
// both isolation levels produce a fresh instance.
func (f *Factory) New(api.Isolation) (api.Session, error) {
	return NewLocal(), nil
}

// Local is an in-process session. Units run synchronously on the calling
// goroutine; the thread policy is decided by whoever calls Run.
type Local struct {
	id        uuid.UUID
	opened    atomic.Bool
	closed    atomic.Bool
	hadErrors atomic.Bool
}

// NewLocal returns an unopened session.
func NewLocal() *Local {
	return &Local{id: uuidx.New()}
}

func (s *Local) ID() uuid.UUID { return s.id }

// Open makes the session usable. Opening twice is a no-op.
func (s *Local) Open() error {
	if s.closed.Load() {
		return fmt.Errorf("session %s is closed", s.id)
	}
	s.opened.Store(true)
	return nil
}

// Run evaluates the unit on the calling goroutine.
func (s *Local) Run(ctx context.Context, unit api.Unit, input *stream.Stream, out api.Streams) error {
	if !s.opened.Load() {
		return fmt.Errorf("session %s is not open", s.id)
	}
	slog.DebugContext(ctx, "running unit", slog.String("unit", unit.Name()), slogx.Stringer("session", s.id))
	return unit.Invoke(ctx, input, out)
}

func (s *Local) HadErrors() bool     { return s.hadErrors.Load() }
func (s *Local) SetHadErrors(v bool) { s.hadErrors.Store(v) }

// Close disposes the session. Closing twice is a no-op.
func (s *Local) Close() error {
	s.closed.Store(true)
	s.opened.Store(false)
	return nil
}
