package executor

import (
	"context"
	"sync"
)

// Signal is a one-shot completion latch. The first Complete call wins:
// it records the terminal failure (or nil), wakes every waiter and fires
// the construction-time callback exactly once, outside the lock guarding
// the state flip. Later calls are no-ops.
//
// The callback is fixed at construction on purpose: there is no
// subscribe/unsubscribe surface, so there is nothing to race against
// when completions arrive from arbitrary goroutines.
type Signal struct {
	mu       sync.Mutex
	done     chan struct{}
	err      error
	set      bool
	callback func(error)
	cbOnce   sync.Once
}

// NewSignal returns an unsignaled latch. onComplete may be nil.
func NewSignal(onComplete func(error)) *Signal {
	return &Signal{
		done:     make(chan struct{}),
		callback: onComplete,
	}
}

// Complete records the terminal outcome and signals the latch. Only the
// first caller's failure value is kept.
func (s *Signal) Complete(failure error) {
	s.mu.Lock()
	if s.set {
		s.mu.Unlock()
		return
	}
	s.set = true
	s.err = failure
	close(s.done)
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		s.cbOnce.Do(func() { cb(failure) })
	}
}

// Release forces the signaled state without invoking the callback. Used
// to abandon an operation quietly. A no-op once signaled.
func (s *Signal) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	s.cbOnce.Do(func() {}) // burn the callback slot
	close(s.done)
}

// Wait blocks until the latch is signaled and returns the recorded
// failure, if any.
func (s *Signal) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// WaitContext is Wait with a deadline supplied by the caller. The latch
// itself carries no timeout. A latch that already fired reports its
// outcome even when ctx is done as well.
func (s *Signal) WaitContext(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		select {
		case <-s.done:
		default:
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done exposes the latch as a channel for use in select statements.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Signaled reports whether the latch has fired.
func (s *Signal) Signaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Failure returns the recorded failure. Only meaningful once signaled.
func (s *Signal) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
