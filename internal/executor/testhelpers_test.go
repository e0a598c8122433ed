package executor

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/uuidx"
	"github.com/casualjim/skein/stream"
)

// Fake session

type fakeSession struct {
	id        uuid.UUID
	hadErrors atomic.Bool
	runs      atomic.Int32
	run       func(ctx context.Context, unit api.Unit, input *stream.Stream, out api.Streams) error
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: uuidx.New()}
}

func (s *fakeSession) ID() uuid.UUID { return s.id }
func (s *fakeSession) Open() error   { return nil }

func (s *fakeSession) Run(ctx context.Context, unit api.Unit, input *stream.Stream, out api.Streams) error {
	s.runs.Add(1)
	if s.run != nil {
		return s.run(ctx, unit, input, out)
	}
	return unit.Invoke(ctx, input, out)
}

func (s *fakeSession) HadErrors() bool     { return s.hadErrors.Load() }
func (s *fakeSession) SetHadErrors(v bool) { s.hadErrors.Store(v) }
func (s *fakeSession) Close() error        { return nil }

// Fake host

type fakeHost struct {
	exitCode atomic.Int32
	exited   atomic.Bool
}

func (h *fakeHost) OnExitRequest(_ context.Context, code int) {
	h.exitCode.Store(int32(code))
	h.exited.Store(true)
}

// emitUnit emits the given values on the output channel and returns err.
func emitUnit(name string, values []any, err error) api.Unit {
	return api.UnitFunc(name, func(_ context.Context, _ *stream.Stream, out api.Streams) error {
		for _, v := range values {
			if addErr := out.Get(api.ChannelOutput).Add(v); addErr != nil {
				return addErr
			}
		}
		return err
	})
}

// echoUnit copies its input stream to the output channel until the input
// is exhausted or interrupted.
func echoUnit(name string) api.Unit {
	return api.UnitFunc(name, func(ctx context.Context, input *stream.Stream, out api.Streams) error {
		for {
			item, err := input.Next(ctx)
			if err != nil {
				if err == stream.ErrClosed {
					return nil
				}
				return err
			}
			if err := out.Get(api.ChannelOutput).Add(item); err != nil {
				return err
			}
		}
	})
}
