package skein

import (
	"context"
	"errors"
	"time"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/stream"
)

// brokenFactory refuses to create sessions.
type brokenFactory struct{}

func (brokenFactory) New(api.Isolation) (api.Session, error) {
	return nil, errors.New("no sessions today")
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

// slowUnit emits one value then sleeps, honoring cancellation.
func slowUnit(name string, value any, d time.Duration) api.Unit {
	return api.UnitFunc(name, func(ctx context.Context, _ *stream.Stream, out api.Streams) error {
		if err := out.Get(api.ChannelOutput).Add(value); err != nil {
			return err
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// blockUnit ignores its input and parks on the context until a stop
// cancels it.
func blockUnit(name string) api.Unit {
	return api.UnitFunc(name, func(ctx context.Context, _ *stream.Stream, _ api.Streams) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

// waitingUnit blocks on its input stream until interrupted or closed.
func waitingUnit(name string) api.Unit {
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
