// Package async provides the deferred-value and success/failure primitives
// used by the remoting layer.
package async

import (
	"context"
	"sync"
)

// Future is a single-assignment deferred value. A Future is created pending
// and transitions exactly once to completed; later completions are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates a pending future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already completed with a value.
func Resolved[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(value)
	return f
}

// Failed returns a future already completed with an error.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Complete resolves the future with a value. Only the first completion wins.
func (f *Future[T]) Complete(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Fail resolves the future with an error. Only the first completion wins.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future settles or the context is cancelled.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// anyFuture is the reflection-friendly view of a Future used by the
// remoting proxy, which cannot name the type parameter.
type anyFuture interface {
	Done() <-chan struct{}
	get() (interface{}, error)
}

func (f *Future[T]) get() (interface{}, error) {
	<-f.done
	return f.value, f.err
}

// Await settles an arbitrary Future value, returning its result and error.
// Returns ok=false if v is not a *Future.
func Await(ctx context.Context, v interface{}) (result interface{}, err error, ok bool) {
	f, isFuture := v.(anyFuture)
	if !isFuture {
		return nil, nil, false
	}
	select {
	case <-f.Done():
	case <-ctx.Done():
		return nil, ctx.Err(), true
	}
	result, err = f.get()
	return result, err, true
}

// IsFuture reports whether v is a *Future of any element type.
func IsFuture(v interface{}) bool {
	_, ok := v.(anyFuture)
	return ok
}
