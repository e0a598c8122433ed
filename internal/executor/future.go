package executor

import (
	"reflect"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/casualjim/skein/pkg/stdx"
)

// Promise is the write side of an asynchronous result: exactly one of
// Complete or Error takes effect, whichever lands first.
type Promise interface {
	Complete(string)
	Error(error)
}

// Future is the read side; Get blocks until the promise is settled.
type Future[T any] interface {
	Get() (T, error)
}

// CompletableFuture combines both sides.
type CompletableFuture[T any] interface {
	Future[T]
	Promise
}

type futState struct {
	value string
	err   error
}

type futResult[T any] struct {
	result T
	err    error
	done   bool
}

type future[T any] struct {
	unmarshal func([]byte) (T, error)
	ch        chan futState
	result    atomic.Value // holds *futResult[T]
	once      sync.Once
	mu        sync.Mutex
}

// NewFuture returns a future that decodes the raw completion payload with
// the supplied unmarshal function on first Get.
func NewFuture[T any](unmarshal func([]byte) (T, error)) CompletableFuture[T] {
	f := &future[T]{
		unmarshal: unmarshal,
		ch:        make(chan futState, 1),
	}
	f.result.Store(&futResult[T]{})
	return f
}

func (f *future[T]) Get() (T, error) {
	res := f.result.Load().(*futResult[T])
	if res.done {
		return res.result, res.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	res = f.result.Load().(*futResult[T])
	if res.done {
		return res.result, res.err
	}

	r := <-f.ch
	var settled futResult[T]
	if r.err != nil {
		settled = futResult[T]{result: stdx.Zero[T](), err: r.err, done: true}
	} else {
		result, err := f.unmarshal([]byte(r.value))
		settled = futResult[T]{result: result, err: err, done: true}
	}
	f.result.Store(&settled)
	return settled.result, settled.err
}

func (f *future[T]) Complete(data string) {
	f.once.Do(func() {
		f.ch <- futState{value: data}
	})
}

func (f *future[T]) Error(err error) {
	f.once.Do(func() {
		f.ch <- futState{err: err}
	})
}

// DefaultUnmarshal picks a decoder for T: gjson results are parsed
// lazily, strings pass through untouched, everything else goes through
// JSON unmarshaling.
func DefaultUnmarshal[T any]() func([]byte) (T, error) {
	var t T
	if _, isGjsonResult := any(t).(gjson.Result); isGjsonResult {
		return func(data []byte) (T, error) {
			result := gjson.ParseBytes(data)
			return any(result).(T), nil
		}
	}
	if reflect.TypeFor[T]().Kind() == reflect.String {
		return func(data []byte) (T, error) {
			return any(string(data)).(T), nil
		}
	}
	return func(data []byte) (T, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return v, err
		}
		return v, nil
	}
}
