package pubsub

import (
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/casualjim/skein/api"
)

var (
	stateJSON  = []byte(`{"type":"state"}`)
	closedJSON = []byte(`{"type":"closed"}`)
)

// Broker hands out named topics. Implementations multiplex many
// concurrent publishers into each topic's subscribers.
type Broker interface {
	Topic(id string) Topic
}

// Topic carries the tagged records and state transitions of one run.
type Topic interface {
	Publish(event Event) error
	Subscribe(hook Hook) (Subscription, error)
}

// Subscription is the handle to one subscriber's feed.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// Event is anything a topic can carry.
type Event interface {
	pubsubEvent()
}

// Item wraps one channel-tagged record produced by a unit of work.
type Item struct {
	Record api.Record
}

func (Item) pubsubEvent() {}

// StateChange announces a task unit transition. Failure is set only for
// terminal-with-failure transitions.
type StateChange struct {
	TaskID    uuid.UUID
	State     api.ExecutionState
	Failure   error
	Timestamp strfmt.DateTime
}

func (StateChange) pubsubEvent() {}

// Closed announces that the sink has been finalized; no further events
// follow on the topic.
type Closed struct{}

func (Closed) pubsubEvent() {}

// ToJSON serializes an event with a type marker for transports that
// carry mixed payloads.
func ToJSON(event Event) ([]byte, error) {
	switch e := event.(type) {
	case Item:
		return e.Record.MarshalJSON()
	case StateChange:
		result := stateJSON
		var err error
		result, err = sjson.SetBytes(result, "task_id", e.TaskID.String())
		if err != nil {
			return nil, err
		}
		result, err = sjson.SetBytes(result, "state", e.State.String())
		if err != nil {
			return nil, err
		}
		if e.Failure != nil {
			result, err = sjson.SetBytes(result, "failure", e.Failure.Error())
			if err != nil {
				return nil, err
			}
		}
		if !e.Timestamp.IsZero() {
			result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
			if err != nil {
				return nil, err
			}
		}
		return result, nil
	case Closed:
		return closedJSON, nil
	default:
		return nil, fmt.Errorf("unknown event type %T", event)
	}
}

// FromJSON restores an event serialized with ToJSON.
func FromJSON(data []byte) (Event, error) {
	parsed := gjson.ParseBytes(data)
	switch tn := parsed.Get("type").Str; tn {
	case "record":
		var rec api.Record
		if err := rec.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return Item{Record: rec}, nil
	case "state":
		var sc StateChange
		if tid := parsed.Get("task_id"); tid.Exists() {
			id, err := uuid.Parse(tid.Str)
			if err != nil {
				return nil, fmt.Errorf("invalid task_id: %w", err)
			}
			sc.TaskID = id
		}
		state, ok := api.ParseExecutionState(parsed.Get("state").Str)
		if !ok {
			return nil, fmt.Errorf("unknown state %q", parsed.Get("state").Str)
		}
		sc.State = state
		if f := parsed.Get("failure"); f.Exists() {
			sc.Failure = transportError(f.Str)
		}
		if ts := parsed.Get("timestamp"); ts.Exists() {
			parsedTime, err := strfmt.ParseDateTime(ts.Str)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %w", err)
			}
			sc.Timestamp = parsedTime
		}
		return sc, nil
	case "closed":
		return Closed{}, nil
	default:
		return nil, fmt.Errorf("unknown event payload %q", tn)
	}
}

// transportError is a failure that crossed a transport boundary; only
// its message survives.
type transportError string

func (e transportError) Error() string { return string(e) }
