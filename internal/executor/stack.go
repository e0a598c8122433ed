package executor

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/pkg/slogx"
)

// Frame is one entry on a session's stop stack: a currently running,
// stoppable unit of work. Frames compare by identity, not unit id, so a
// nested re-entry of the same unit gets its own frame.
type Frame struct {
	id   uuid.UUID
	stop func()
}

// NewFrame builds a frame for the unit with the given id. stop is invoked
// at most once, from the goroutine that called StopStack.Stop, and must
// not block indefinitely.
func NewFrame(id uuid.UUID, stop func()) *Frame {
	return &Frame{id: id, stop: stop}
}

// ID returns the id of the unit this frame stands for.
func (f *Frame) ID() uuid.UUID { return f.id }

// StopStack tracks the stoppable units of one execution session. Push and
// Pop bracket a unit's run; Stop flips the session into the stopping
// state and signals every registered frame. Once stopping, no push ever
// succeeds again.
//
// All bookkeeping happens under one coarse lock. The lock is never held
// while calling into a frame's stop function: Stop marks and snapshots
// under the lock, then signals outside it, because stop functions may
// take time or re-enter the stack.
type StopStack struct {
	mu       sync.Mutex
	frames   []*Frame
	stopping bool
}

// NewStopStack returns an empty stack in the idle state.
func NewStopStack() *StopStack {
	return &StopStack{}
}

// Push registers a frame. Fails with api.ErrStopping when the session is
// stopping; the caller must not start the unit in that case.
func (s *StopStack) Push(frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return api.ErrStopping
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Pop removes the most recently pushed frame matching the argument.
//
// While the session is stopping Pop is deliberately a no-op: Stop owns
// draining then, and a frame popped in the race window between the
// stopping flag flipping and the stop signals going out could escape its
// stop signal, or be signaled twice. Do not "fix" this to always pop.
func (s *StopStack) Pop(frame *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i] == frame {
			s.frames = append(s.frames[:i], s.frames[i+1:]...)
			return
		}
	}
}

// Stop marks the session stopping and signals every registered frame.
// Idempotent: the second and later calls return immediately. Frames stay
// in the bookkeeping; the acting units terminate asynchronously and the
// owning component tears the session down afterwards.
func (s *StopStack) Stop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	snapshot := slices.Clone(s.frames)
	s.mu.Unlock()

	for _, frame := range snapshot {
		if frame.stop == nil {
			continue
		}
		slog.Debug("signaling frame to stop", slogx.Stringer("unit", frame.id))
		frame.stop()
	}
}

// Stopping reports whether Stop has been called.
func (s *StopStack) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Depth returns the number of registered frames.
func (s *StopStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
