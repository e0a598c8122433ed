package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAddAndNext(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("a"))
	require.NoError(t, s.Add("b"))

	item, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", item)

	item, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", item)
}

func TestStreamListenerRunsOnAdd(t *testing.T) {
	var mu sync.Mutex
	var seen []any
	s := New(func(item any) {
		mu.Lock()
		seen = append(seen, item)
		mu.Unlock()
	})

	require.NoError(t, s.Add(1))
	require.NoError(t, s.Add(2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{1, 2}, seen)
}

func TestStreamNextBlocksUntilAdd(t *testing.T) {
	s := New(nil)
	got := make(chan any, 1)

	go func() {
		item, err := s.Next(context.Background())
		if err == nil {
			got <- item
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Add("late"))

	select {
	case item := <-got:
		assert.Equal(t, "late", item)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after Add")
	}
}

func TestStreamAddAfterClose(t *testing.T) {
	s := New(nil)
	s.Close()
	assert.ErrorIs(t, s.Add("x"), ErrClosed)
}

func TestStreamCloseDrainsBufferFirst(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("buffered"))
	s.Close()

	item, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "buffered", item)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamForceCloseDiscardsBuffer(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("doomed"))
	s.ForceClose()

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Zero(t, s.Len())
}

func TestStreamForceCloseWakesBlockedReader(t *testing.T) {
	s := New(nil)
	errCh := make(chan error, 1)

	go func() {
		_, err := s.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.ForceClose()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("reader was not released by ForceClose")
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reader was not released by context cancellation")
	}
}

func TestStreamTryNext(t *testing.T) {
	s := New(nil)

	_, ok := s.TryNext()
	assert.False(t, ok)

	require.NoError(t, s.Add("x"))
	item, ok := s.TryNext()
	assert.True(t, ok)
	assert.Equal(t, "x", item)
}

func TestStreamDrain(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(1))
	require.NoError(t, s.Add(2))
	require.NoError(t, s.Add(3))

	assert.Equal(t, []any{1, 2, 3}, s.Drain())
	assert.Zero(t, s.Len())
}

func TestStreamConcurrentProducers(t *testing.T) {
	s := New(nil)
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				_ = s.Add(n)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, s.Len())
}
