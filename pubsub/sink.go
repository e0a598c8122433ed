package pubsub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/casualjim/skein/api"
)

// Sink is the ordered destination many concurrently running units
// multiplex their tagged records into. Appends are safe from any number
// of unit goroutines; consumers observe records in arrival order, not
// start order. Finalize fires at most once, regardless of how close and
// last-completion interleave, and is the signal that no further records
// will arrive.
type Sink struct {
	topic Topic

	mu      sync.Mutex
	arrival []api.Record
	byTask  *orderedmap.OrderedMap[uuid.UUID, []api.Record]

	seq       atomic.Uint64
	finalized atomic.Bool
	finalOnce sync.Once
	done      chan struct{}
}

// NewSink returns a sink publishing into the given topic. topic may be
// nil for a purely in-memory sink.
func NewSink(topic Topic) *Sink {
	return &Sink{
		topic:  topic,
		byTask: orderedmap.New[uuid.UUID, []api.Record](),
		done:   make(chan struct{}),
	}
}

// Append stores one tagged record and publishes it. Returns the record
// with its arrival sequence number filled in. Appends after Finalize are
// dropped; a unit raced by finalization must not resurrect the sink.
func (s *Sink) Append(record api.Record) api.Record {
	if s.finalized.Load() {
		return record
	}

	record.Seq = s.seq.Add(1)
	if record.Timestamp.IsZero() {
		record.Timestamp = strfmt.DateTime(time.Now())
	}

	s.mu.Lock()
	s.arrival = append(s.arrival, record)
	existing, _ := s.byTask.Get(record.TaskID)
	s.byTask.Set(record.TaskID, append(existing, record))
	s.mu.Unlock()

	if s.topic != nil {
		_ = s.topic.Publish(Item{Record: record})
	}
	return record
}

// AppendFailure converts a unit's terminal failure into a non
// terminating error record tagged with the unit's identity, so one
// failing unit never interrupts its siblings.
func (s *Sink) AppendFailure(taskID uuid.UUID, failure error) api.Record {
	return s.Append(api.Record{
		TaskID:  taskID,
		Channel: api.ChannelError,
		Err:     failure,
		Value:   failure.Error(),
	})
}

// AnnounceState publishes a task unit state transition on the sink's
// topic. Transitions are not records; they do not enter the log.
func (s *Sink) AnnounceState(taskID uuid.UUID, state api.ExecutionState, failure error) {
	if s.topic == nil || s.finalized.Load() {
		return
	}
	_ = s.topic.Publish(StateChange{
		TaskID:    taskID,
		State:     state,
		Failure:   failure,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

// Finalize closes the sink exactly once: it publishes the Closed event
// and releases waiters on Done. Later calls are no-ops.
func (s *Sink) Finalize() {
	s.finalOnce.Do(func() {
		s.finalized.Store(true)
		if s.topic != nil {
			_ = s.topic.Publish(Closed{})
		}
		close(s.done)
	})
}

// Finalized reports whether the sink has been closed.
func (s *Sink) Finalized() bool {
	return s.finalized.Load()
}

// Done is closed when the sink has been finalized.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Records returns the full record log in arrival order.
func (s *Sink) Records() []api.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Record, len(s.arrival))
	copy(out, s.arrival)
	return out
}

// RecordsFor returns one unit's records in its emission order.
func (s *Sink) RecordsFor(taskID uuid.UUID) []api.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, _ := s.byTask.Get(taskID)
	out := make([]api.Record, len(records))
	copy(out, records)
	return out
}

// TaskIDs returns the unit identities in first-seen order.
func (s *Sink) TaskIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, s.byTask.Len())
	for pair := s.byTask.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// OutputJSON renders every output-channel value as a JSON array, in
// arrival order. This is the raw payload typed result futures decode.
func (s *Sink) OutputJSON() (string, error) {
	s.mu.Lock()
	values := make([]any, 0, len(s.arrival))
	for _, record := range s.arrival {
		if record.Channel == api.ChannelOutput {
			values = append(values, record.Value)
		}
	}
	s.mu.Unlock()

	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
