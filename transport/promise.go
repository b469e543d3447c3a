// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package transport

import "sync"

// A Promise is the close notification of a Conn. It is complete once the
// connection has fully shut down, and records whether the shutdown was clean.
// A *Promise satisfies future.Source[struct{}].
type Promise struct {
	done chan struct{}

	mu        sync.Mutex
	fired     bool
	err       error
	listeners []func()
}

func newPromise() *Promise { return &Promise{done: make(chan struct{})} }

// OnComplete registers fn to be called once p is complete. If p is already
// complete, fn is called immediately. A panic in one listener does not keep
// the others from running.
func (p *Promise) OnComplete(fn func()) {
	p.mu.Lock()
	if !p.fired {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

// Get blocks until p is complete, and reports the error that ended the
// connection, or nil if it closed cleanly.
func (p *Promise) Get() (struct{}, error) {
	<-p.done
	return struct{}{}, p.Err()
}

// Done returns a channel that is closed when p is complete.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Err returns the error that ended the connection. It returns nil if p is not
// complete, or if the connection closed cleanly.
func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Promise) complete(err error) {
	p.mu.Lock()
	if p.fired {
		p.mu.Unlock()
		return
	}
	p.fired = true
	p.err = err
	fns := p.listeners
	p.listeners = nil
	close(p.done)
	p.mu.Unlock()

	var first any
	for _, fn := range fns {
		func() {
			defer func() {
				if p := recover(); p != nil && first == nil {
					first = p
				}
			}()
			fn()
		}()
	}
	if first != nil {
		panic(first) // after every listener has run
	}
}
