package pubsub

import (
	"context"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/nats-io/nats.go"

	"github.com/casualjim/skein/pkg/slogx"
	"github.com/casualjim/skein/pkg/uuidx"
)

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

// NATS returns a broker that carries events over a NATS connection, so
// that record consumers can live in another process. The events cross
// the wire in their ToJSON form; failures keep only their message.
func NATS(client *nats.Conn) Broker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsBroker) Topic(id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: id,
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(event Event) error {
	eb, err := ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(hook Hook) (Subscription, error) {
	sub := t.newSubscription(hook)
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err))
			hook.OnError(sub.ctx, err)
			return
		}

		select {
		case sub.channel <- event:
		case <-sub.ctx.Done():
		}
	})
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	sub.onClose = func() {
		if uerr := nsub.Unsubscribe(); uerr != nil {
			slog.Error("failed to unsubscribe", slogx.Error(uerr))
		}
	}
	return sub, nil
}

func (t *natsTopic) newSubscription(hook Hook) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      uuidx.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		channel: make(chan Event, 50),
		hook:    hook,
	}
	go sub.forwardToHook()
	return sub
}
