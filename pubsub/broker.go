package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/casualjim/skein/pkg/uuidx"
)

const defaultSlowSubscriberTimeout = 100 * time.Millisecond

type broker struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

// Local returns an in-process broker. Topics are created on first use
// and live for the broker's lifetime.
func Local() Broker {
	return &broker{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout configures how long a publish waits on a
// full subscriber channel before dropping that subscriber.
func (b *broker) WithSlowSubscriberTimeout(timeout time.Duration) *broker {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *broker) Topic(id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			id:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return top
}

type topic struct {
	id                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

// Publish fans the event out to every live subscription. A subscriber
// that cannot keep up within the slow-subscriber timeout is dropped so
// one stalled consumer cannot wedge the units producing records.
func (t *topic) Publish(event Event) error {
	t.subscriptions.ForEach(func(id string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		select {
		case <-sub.ctx.Done():
			sub.Unsubscribe()
		case sub.channel <- event:
		case <-time.After(t.slowSubscriberTimeout):
			sub.Unsubscribe()
		}
		return true
	})
	return nil
}

func (t *topic) Subscribe(hook Hook) (Subscription, error) {
	if hook == nil {
		return nil, fmt.Errorf("hook is required")
	}
	return t.newSubscription(context.Background(), hook), nil
}

func (t *topic) newSubscription(ctx context.Context, hook Hook) *subscription {
	ctx, cancel := context.WithCancel(ctx)
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		channel: make(chan Event, 50),
		onClose: func() { t.subscriptions.Del(id) },
		hook:    hook,
	}
	t.subscriptions.Set(id, sub)
	go sub.forwardToHook()
	return sub
}

type subscription struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	channel   chan Event
	closeOnce sync.Once
	onClose   func()
	hook      Hook
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.cancel()
		close(s.channel)
	})
}

func (s *subscription) forwardToHook() {
	for {
		select {
		case event, ok := <-s.channel:
			if !ok {
				return
			}
			dispatch(s.ctx, s.hook, event)
		case <-s.ctx.Done():
			return
		}
	}
}

// dispatch routes one event to the matching hook method.
func dispatch(ctx context.Context, hook Hook, event Event) {
	switch event := event.(type) {
	case Item:
		hook.OnItem(ctx, event.Record)
	case StateChange:
		hook.OnStateChange(ctx, event.TaskID, event.State, event.Failure)
	case Closed:
		hook.OnClosed(ctx)
	default:
		panic(fmt.Sprintf("unknown event type: %T", event))
	}
}
