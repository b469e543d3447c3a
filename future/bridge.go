// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package future

import "fmt"

// A Source is the completion primitive of some other library, for example the
// close notification of a network transport. A Source must call each function
// passed to OnComplete exactly once, after it is complete; a function added
// after completion is called promptly. Once complete, Get reports the outcome
// of the source.
type Source[T any] interface {
	// OnComplete registers fn to be called when the source is complete.
	OnComplete(fn func())

	// Get returns the value and error of a complete source.
	Get() (T, error)
}

// From returns a new future that is completed with the outcome of src. A
// successful outcome resolves the future with the value reported by src. A
// failed outcome rejects the future with the error reported by src, exactly as
// given.
//
// If src.Get panics, the future is rejected with a *PanicError carrying the
// recovered value, rather than propagating the panic to the goroutine that
// completed src.
func From[T any](src Source[T]) *Future[T] {
	f := New[T]()
	src.OnComplete(func() { settle(f, src) })
	return f
}

func settle[T any](f *Future[T], src Source[T]) {
	v, err := safeGet(src)
	if err != nil {
		f.Reject(err)
		return
	}
	f.Resolve(v)
}

// safeGet calls src.Get, converting a panic into a *PanicError. Only the call
// to the source is covered; continuations run by completing the future are
// not.
func safeGet[T any](src Source[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v, err = zero, &PanicError{Value: p}
		}
	}()
	return src.Get()
}

// PanicError is the cause of a future rejected because its source panicked
// while reporting its outcome.
type PanicError struct {
	Value any // the value recovered from the panic
}

// Error implements the error interface.
func (p *PanicError) Error() string { return fmt.Sprintf("future source panicked: %v", p.Value) }

// Unwrap reports the recovered value if it is an error, or else nil.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}
