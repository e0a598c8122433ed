package skein

import (
	"context"
	"sync"

	"github.com/casualjim/skein/internal/executor"
)

// Future is the read side of an asynchronous result.
type Future[T any] interface {
	// can't type alias this (yet) because of the type parameter
	Get() (T, error)
}

// Promise is the write side: exactly one of Complete or Error takes
// effect, whichever lands first.
type Promise interface {
	Complete(string)
	Error(error)
}

type deferredPromise[T any] struct {
	promise executor.CompletableFuture[T]
	hook    Hook[T]
	mu      sync.Mutex
	value   string
	err     error
	once    sync.Once
}

func (d *deferredPromise[T]) Forward(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		d.promise.Error(d.err)
		d.hook.OnError(ctx, d.err)
		return
	}

	d.promise.Complete(d.value)
	res, err := d.promise.Get()
	if err != nil {
		d.hook.OnError(ctx, err)
		return
	}
	d.hook.OnResult(ctx, res)
}

func (d *deferredPromise[T]) Complete(result string) {
	d.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.value = result
	})
}

func (d *deferredPromise[T]) Error(err error) {
	d.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.err = err
	})
}

type noopPromise struct{}

func (noopPromise) Complete(string) {}
func (noopPromise) Error(error)     {}

// NewDeferred bridges a typed hook onto the pool's aggregated result.
// The returned promise is settled by the pool at finalization; the
// returned close function forwards the decoded result (or error) to the
// hook and fires OnClose. Wire both:
//
//	promise, onClose := skein.NewDeferred[[]float64](hook)
//	pool := skein.NewPool(4, factory, sink,
//	    skein.WithPromise(promise),
//	    skein.WithOnFinalize(onClose),
//	)
func NewDeferred[T any](hook Hook[T]) (Promise, func(context.Context)) {
	fut := executor.NewFuture(executor.DefaultUnmarshal[T]())
	dp := &deferredPromise[T]{
		promise: fut,
		hook:    hook,
	}
	return dp, func(ctx context.Context) {
		dp.Forward(ctx)
		hook.OnClose(ctx)
	}
}

// NewFuture returns a connected promise/future pair decoding the raw
// completion payload into T on first Get.
func NewFuture[T any]() (Promise, Future[T]) {
	fut := executor.NewFuture(executor.DefaultUnmarshal[T]())
	return fut, fut
}
