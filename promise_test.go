package skein

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/skein/api"
)

// collectingHook records the typed result and lifecycle callbacks.
type collectingHook[T any] struct {
	mu      sync.Mutex
	results []T
	errs    []error
	closed  int
}

func (h *collectingHook[T]) OnItem(context.Context, api.Record) {}
func (h *collectingHook[T]) OnStateChange(context.Context, uuid.UUID, api.ExecutionState, error) {
}
func (h *collectingHook[T]) OnClosed(context.Context) {}

func (h *collectingHook[T]) OnError(_ context.Context, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *collectingHook[T]) OnResult(_ context.Context, result T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

func (h *collectingHook[T]) OnClose(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func TestDeferredPromiseForwardsResult(t *testing.T) {
	hook := &collectingHook[[]string]{}
	promise, wait := NewDeferred[[]string](hook)

	promise.Complete(`["a","b"]`)
	wait(context.Background())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.results, 1)
	assert.Equal(t, []string{"a", "b"}, hook.results[0])
	assert.Empty(t, hook.errs)
	assert.Equal(t, 1, hook.closed)
}

func TestDeferredPromiseForwardsError(t *testing.T) {
	hook := &collectingHook[[]string]{}
	promise, wait := NewDeferred[[]string](hook)
	boom := errors.New("boom")

	promise.Error(boom)
	wait(context.Background())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Empty(t, hook.results)
	require.Len(t, hook.errs, 1)
	assert.ErrorIs(t, hook.errs[0], boom)
	assert.Equal(t, 1, hook.closed)
}

func TestDeferredPromiseFirstSettlementWins(t *testing.T) {
	hook := &collectingHook[int]{}
	promise, wait := NewDeferred[int](hook)

	promise.Complete("1")
	promise.Complete("2")
	promise.Error(errors.New("too late"))
	wait(context.Background())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.results, 1)
	assert.Equal(t, 1, hook.results[0])
	assert.Empty(t, hook.errs)
}
