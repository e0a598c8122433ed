package pubsub

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/slogx"
)

// Hook receives the events flowing through a topic. There is no no-op
// base implementation on purpose: when an event type is added, every
// consumer has to decide explicitly whether to handle or ignore it.
type Hook interface {
	// OnItem receives each channel-tagged record in arrival order.
	OnItem(ctx context.Context, record api.Record)

	// OnStateChange receives every task unit state transition. failure
	// is non-nil only for terminal-with-failure transitions.
	OnStateChange(ctx context.Context, taskID uuid.UUID, state api.ExecutionState, failure error)

	// OnClosed fires once, when the sink has been finalized.
	OnClosed(ctx context.Context)

	// OnError receives transport-level errors, not unit failures.
	OnError(ctx context.Context, err error)
}

// LoggingHook returns a Hook that writes every event to slog at debug
// level. Useful as a tap during development.
func LoggingHook() Hook {
	return loggingHook{}
}

type loggingHook struct{}

func (loggingHook) OnItem(ctx context.Context, record api.Record) {
	slog.DebugContext(ctx, "record",
		slogx.Stringer("task", record.TaskID),
		slogx.Stringer("channel", record.Channel),
		slog.Any("value", record.Value),
	)
}

func (loggingHook) OnStateChange(ctx context.Context, taskID uuid.UUID, state api.ExecutionState, failure error) {
	if failure != nil {
		slog.DebugContext(ctx, "state change", slogx.Stringer("task", taskID), slogx.Stringer("state", state), slogx.Error(failure))
		return
	}
	slog.DebugContext(ctx, "state change", slogx.Stringer("task", taskID), slogx.Stringer("state", state))
}

func (loggingHook) OnClosed(ctx context.Context) {
	slog.DebugContext(ctx, "sink closed")
}

func (loggingHook) OnError(ctx context.Context, err error) {
	slog.DebugContext(ctx, "transport error", slogx.Error(err))
}
