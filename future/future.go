// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package future defines a generic one-shot completion value, and an adapter
// that converts transport-specific completion primitives into it.
//
// A *Future[T] is completed exactly once, either by Resolve with a value or by
// Reject with an error. Callers observe the outcome by waiting on Done, by
// calling Wait, or by attaching a continuation with Then:
//
//	f := future.New[int]()
//	f.Then(func(v int, err error) { log.Printf("done: %v, %v", v, err) })
//	f.Resolve(25)
//
// The methods of a *Future are safe for concurrent use by multiple goroutines.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is reported by Result for a future that is not yet complete.
var ErrPending = errors.New("future is not complete")

// errNilCause is the cause recorded when Reject is called with a nil error, so
// that a rejected future never reports success.
var errNilCause = errors.New("future rejected without a cause")

// A Future is a one-shot container for a value of type T or an error.
type Future[T any] struct {
	done chan struct{} // closed when the future is complete

	mu    sync.Mutex // protects the fields below
	ready bool
	value T
	err   error
	then  []func(T, error) // continuations awaiting completion
}

// New constructs a new incomplete future.
func New[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

// Resolved returns a future already resolved with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve completes f successfully with value v. It reports whether this call
// completed f; if f was already complete, Resolve has no effect and returns
// false.
func (f *Future[T]) Resolve(v T) bool { return f.complete(v, nil) }

// Reject completes f unsuccessfully with the given cause. It reports whether
// this call completed f; if f was already complete, Reject has no effect and
// returns false. The cause is recorded as given, without wrapping, so that
// callers may compare it by identity or with errors.Is and errors.As.
// If err == nil, a generic non-nil cause is recorded in its place.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = errNilCause
	}
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return false
	}
	f.ready = true
	f.value, f.err = v, err
	then := f.then
	f.then = nil
	close(f.done)
	f.mu.Unlock()

	// N.B. Run continuations outside the lock, so they may inspect f.
	runAll(then, v, err)
	return true
}

// runAll calls each of fns with v and err, in order. If any of them panics,
// the rest are still called, and then the first panic is re-raised.
func runAll[T any](fns []func(T, error), v T, err error) {
	var first any
	for _, fn := range fns {
		func() {
			defer func() {
				if p := recover(); p != nil && first == nil {
					first = p
				}
			}()
			fn(v, err)
		}()
	}
	if first != nil {
		panic(first)
	}
}

// Done returns a channel that is closed when f is complete.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Ready reports whether f is complete.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result reports the value and error of f without blocking. If f is not yet
// complete, Result returns a zero value and ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Wait blocks until f is complete or ctx ends. If f completes, Wait returns
// its value and error; otherwise it returns a zero value and the error from
// ctx. Ending the wait does not affect f.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then arranges for fn to be called with the value and error of f once f is
// complete. If f is already complete, fn is called synchronously before Then
// returns; otherwise it is called by the goroutine that completes f.
// Continuations are called in the order they were attached. If a
// continuation panics, the rest are still called, and the panic then
// propagates to the goroutine that completed f.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.ready {
		f.then = append(f.then, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// OnComplete arranges for fn to be called once f is complete. Together with
// Get, this allows a *Future to serve as a Source.
func (f *Future[T]) OnComplete(fn func()) { f.Then(func(T, error) { fn() }) }

// Get blocks until f is complete and returns its value and error.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.Result()
}
