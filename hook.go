package skein

import (
	"context"

	"github.com/casualjim/skein/pubsub"
)

// Hook extends the pubsub event surface with a typed final result and a
// close notification, for owners that want the pool's aggregated output
// decoded into T when the sink finalizes.
type Hook[T any] interface {
	pubsub.Hook
	OnResult(context.Context, T)
	OnClose(context.Context)
}
