package executor

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/uuidx"
)

func TestStopStackPushPop(t *testing.T) {
	s := NewStopStack()
	f1 := NewFrame(uuidx.New(), func() {})
	f2 := NewFrame(uuidx.New(), func() {})

	require.NoError(t, s.Push(f1))
	require.NoError(t, s.Push(f2))
	assert.Equal(t, 2, s.Depth())

	s.Pop(f2)
	assert.Equal(t, 1, s.Depth())
	s.Pop(f1)
	assert.Zero(t, s.Depth())
}

func TestStopStackPopOutOfOrder(t *testing.T) {
	s := NewStopStack()
	f1 := NewFrame(uuidx.New(), func() {})
	f2 := NewFrame(uuidx.New(), func() {})

	require.NoError(t, s.Push(f1))
	require.NoError(t, s.Push(f2))

	// Removing a buried frame must not disturb the one above it.
	s.Pop(f1)
	assert.Equal(t, 1, s.Depth())
	s.Pop(f2)
	assert.Zero(t, s.Depth())
}

func TestStopStackStopSignalsAllFrames(t *testing.T) {
	s := NewStopStack()
	var stopped atomic.Int32

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Push(NewFrame(uuidx.New(), func() { stopped.Add(1) })))
	}

	s.Stop()
	assert.Equal(t, int32(3), stopped.Load())
	assert.True(t, s.Stopping())
}

func TestStopStackPushAfterStop(t *testing.T) {
	s := NewStopStack()
	s.Stop()

	err := s.Push(NewFrame(uuidx.New(), func() {}))
	assert.ErrorIs(t, err, api.ErrStopping)
	assert.Zero(t, s.Depth())
}

func TestStopStackPopDuringStopIsNoop(t *testing.T) {
	s := NewStopStack()
	f := NewFrame(uuidx.New(), func() {})
	require.NoError(t, s.Push(f))

	s.Stop()
	s.Pop(f)

	// The frame stays so that the stop owner keeps a complete picture of
	// what it interrupted.
	assert.Equal(t, 1, s.Depth())
}

func TestStopStackStopIdempotent(t *testing.T) {
	s := NewStopStack()
	var stopped atomic.Int32
	require.NoError(t, s.Push(NewFrame(uuidx.New(), func() { stopped.Add(1) })))

	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), stopped.Load())
}

func TestStopStackConcurrentPushStop(t *testing.T) {
	s := NewStopStack()
	var signaled atomic.Int32
	var accepted atomic.Int32

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.Push(NewFrame(uuidx.New(), func() { signaled.Add(1) })) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		s.Stop()
	}()

	close(start)
	wg.Wait()

	// Every accepted frame got its stop callback; frames refused at the
	// gate never will.
	assert.Equal(t, accepted.Load(), signaled.Load())
	assert.True(t, s.Stopping())
}
