package pubsub

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/uuidx"
)

// captureTopic records published events without a broker behind it.
type captureTopic struct {
	mu     sync.Mutex
	events []Event
}

func (t *captureTopic) Publish(event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	return nil
}

func (t *captureTopic) Subscribe(Hook) (Subscription, error) {
	return nil, errors.New("not implemented")
}

func (t *captureTopic) published() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

func TestSinkAppendAssignsSequence(t *testing.T) {
	s := NewSink(nil)
	taskID := uuidx.New()

	first := s.Append(api.Record{TaskID: taskID, Value: "a"})
	second := s.Append(api.Record{TaskID: taskID, Value: "b"})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.False(t, first.Timestamp.IsZero())
}

func TestSinkInterleavedArrivalOrder(t *testing.T) {
	s := NewSink(nil)
	a, b := uuidx.New(), uuidx.New()

	s.Append(api.Record{TaskID: a, Value: "a1"})
	s.Append(api.Record{TaskID: b, Value: "b1"})
	s.Append(api.Record{TaskID: a, Value: "a2"})
	s.Append(api.Record{TaskID: b, Value: "b2"})

	var values []any
	for _, rec := range s.Records() {
		values = append(values, rec.Value)
	}
	assert.Equal(t, []any{"a1", "b1", "a2", "b2"}, values)

	// Per-unit views preserve each unit's own emission order.
	recsA := s.RecordsFor(a)
	require.Len(t, recsA, 2)
	assert.Equal(t, "a1", recsA[0].Value)
	assert.Equal(t, "a2", recsA[1].Value)

	assert.Equal(t, []uuid.UUID{a, b}, s.TaskIDs())
}

func TestSinkPublishesAppendedRecords(t *testing.T) {
	topic := &captureTopic{}
	s := NewSink(topic)
	taskID := uuidx.New()

	s.Append(api.Record{TaskID: taskID, Channel: api.ChannelOutput, Value: 1})
	s.AnnounceState(taskID, api.StateRunning, nil)
	s.Finalize()

	events := topic.published()
	require.Len(t, events, 3)
	assert.IsType(t, Item{}, events[0])
	assert.IsType(t, StateChange{}, events[1])
	assert.IsType(t, Closed{}, events[2])
}

func TestSinkAppendFailure(t *testing.T) {
	s := NewSink(nil)
	taskID := uuidx.New()
	boom := errors.New("unit b exploded")

	rec := s.AppendFailure(taskID, boom)

	assert.Equal(t, taskID, rec.TaskID)
	assert.Equal(t, api.ChannelError, rec.Channel)
	assert.True(t, rec.IsError())
	assert.Equal(t, boom.Error(), rec.Value)

	// The failure is a record in the log, not a termination of the sink.
	assert.False(t, s.Finalized())
	assert.Len(t, s.Records(), 1)
}

func TestSinkFinalizeExactlyOnce(t *testing.T) {
	topic := &captureTopic{}
	s := NewSink(topic)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Finalize()
		}()
	}
	wg.Wait()

	closedCount := 0
	for _, event := range topic.published() {
		if _, ok := event.(Closed); ok {
			closedCount++
		}
	}
	assert.Equal(t, 1, closedCount)
	assert.True(t, s.Finalized())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Finalize")
	}
}

func TestSinkDropsAppendsAfterFinalize(t *testing.T) {
	s := NewSink(nil)
	s.Append(api.Record{TaskID: uuidx.New(), Value: "kept"})
	s.Finalize()
	s.Append(api.Record{TaskID: uuidx.New(), Value: "dropped"})

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Value)
}

func TestSinkOutputJSON(t *testing.T) {
	s := NewSink(nil)
	taskID := uuidx.New()

	s.Append(api.Record{TaskID: taskID, Channel: api.ChannelOutput, Value: "a"})
	s.Append(api.Record{TaskID: taskID, Channel: api.ChannelVerbose, Value: "chatter"})
	s.Append(api.Record{TaskID: taskID, Channel: api.ChannelOutput, Value: 2})

	data, err := s.OutputJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["a",2]`, data)
}

func TestSinkConcurrentAppends(t *testing.T) {
	s := NewSink(nil)
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			taskID := uuidx.New()
			for j := 0; j < perWriter; j++ {
				s.Append(api.Record{TaskID: taskID, Value: j})
			}
		}()
	}
	wg.Wait()

	records := s.Records()
	require.Len(t, records, writers*perWriter)

	// Sequence numbers are unique even under contention.
	seen := make(map[uint64]bool, len(records))
	for _, rec := range records {
		assert.False(t, seen[rec.Seq])
		seen[rec.Seq] = true
	}
	assert.Len(t, s.TaskIDs(), writers)
}
