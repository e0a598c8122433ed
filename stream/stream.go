// Package stream provides the in-process data stream connecting a unit of
// work to its consumers. A stream is an unbounded FIFO of opaque items
// with three lifecycle affordances the execution core depends on: an
// item-added listener fixed at construction, a closed predicate, and a
// force-close that unblocks a reader immediately so a stopped unit can
// observe the stop instead of hanging on its input.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Add after the stream has been closed, and by
// Next once a closed stream has been drained.
var ErrClosed = errors.New("stream is closed")

// ErrInterrupted is returned by Next when the stream was force-closed
// while the reader was blocked. Pending items are discarded.
var ErrInterrupted = errors.New("stream was force closed")

// Listener observes items as they are appended. It runs on the writer's
// goroutine, outside the stream lock; implementations must be safe for
// calls from many goroutines when the stream has many writers.
type Listener func(item any)

// Stream is a FIFO of items produced by a unit of work. The zero value is
// not usable, construct with New.
type Stream struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []any
	closed   bool
	forced   bool
	onAdd    Listener
}

// New returns an open stream. The listener, when not nil, is invoked once
// per appended item, after the item is visible to readers. Listener
// registration happens only here; there is no subscribe/unsubscribe
// surface to race against.
func New(onAdd Listener) *Stream {
	s := &Stream{onAdd: onAdd}
	s.notEmpty = sync.NewCond(&s.mu)
	return s
}

// Add appends one item. Returns ErrClosed if the stream is closed.
func (s *Stream) Add(item any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.items = append(s.items, item)
	onAdd := s.onAdd
	s.notEmpty.Signal()
	s.mu.Unlock()

	if onAdd != nil {
		onAdd(item)
	}
	return nil
}

// Next blocks until an item is available, the stream is closed, or ctx is
// done. A closed stream keeps yielding buffered items until drained, then
// reports ErrClosed. A force-closed stream reports ErrInterrupted without
// draining.
func (s *Stream) Next(ctx context.Context) (any, error) {
	if ctx.Done() != nil {
		// Wake blocked readers when the context fires. The goroutine
		// exits once the reader observes either condition.
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			s.notEmpty.Broadcast()
			s.mu.Unlock()
		})
		defer stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.forced {
			return nil, ErrInterrupted
		}
		if len(s.items) > 0 {
			item := s.items[0]
			s.items = s.items[1:]
			return item, nil
		}
		if s.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.notEmpty.Wait()
	}
}

// TryNext returns the head item without blocking.
func (s *Stream) TryNext() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced || len(s.items) == 0 {
		return nil, false
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, true
}

// Drain removes and returns every buffered item.
func (s *Stream) Drain() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced {
		return nil
	}
	items := s.items
	s.items = nil
	return items
}

// Close marks the stream closed. Buffered items stay readable. Closing an
// already closed stream is a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.notEmpty.Broadcast()
	s.mu.Unlock()
}

// ForceClose closes the stream and discards buffered items so that a
// reader blocked in Next returns immediately with ErrInterrupted. Used to
// unblock a unit waiting on upstream input when its session is stopped.
func (s *Stream) ForceClose() {
	s.mu.Lock()
	s.closed = true
	s.forced = true
	s.items = nil
	s.notEmpty.Broadcast()
	s.mu.Unlock()
}

// Closed reports whether the stream no longer accepts items.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of buffered items.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
