// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package testutil defines internal support code for writing tests.
package testutil

import (
	"sync"
	"testing"

	"github.com/creachadair/dbuschan/future"
	"github.com/creachadair/dbuschan/message"
)

// A FakeConn is an in-memory transport that records what is submitted to it.
// Inbound messages are injected with Deliver, and shutdown is completed
// explicitly with Finish. It satisfies the dbuschan.Conn interface.
type FakeConn struct {
	closed *future.Future[struct{}]

	mu           sync.Mutex
	deliver      func(*message.Message)
	submitted    []*message.Message
	disconnected bool
	closeCalled  bool
	listeners    int
}

// NewFakeConn constructs a new unstarted FakeConn.
func NewFakeConn() *FakeConn { return &FakeConn{closed: future.New[struct{}]()} }

// Start records deliver as the delivery function. It will panic if c has
// already been started.
func (c *FakeConn) Start(deliver func(*message.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliver != nil {
		panic("fake connection is already started")
	}
	c.deliver = deliver
}

// Submit records msg.
func (c *FakeConn) Submit(msg *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, msg)
}

// Disconnect records that a half-close was requested.
func (c *FakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// Close records that a full shutdown was requested. It does not complete the
// close future; use Finish for that.
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalled = true
}

// CloseFuture returns the close notification of c. Listeners registered on
// it are counted.
func (c *FakeConn) CloseFuture() future.Source[struct{}] { return closeSource{c} }

// Listeners reports the number of listeners registered on the close
// notification of c.
func (c *FakeConn) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners
}

type closeSource struct{ c *FakeConn }

func (s closeSource) OnComplete(fn func()) {
	s.c.mu.Lock()
	s.c.listeners++
	s.c.mu.Unlock()
	s.c.closed.OnComplete(fn)
}

func (s closeSource) Get() (struct{}, error) { return s.c.closed.Get() }

// Deliver passes msg to the delivery function given to Start. It will panic
// if c has not been started.
func (c *FakeConn) Deliver(msg *message.Message) {
	c.mu.Lock()
	fn := c.deliver
	c.mu.Unlock()
	if fn == nil {
		panic("fake connection is not started")
	}
	fn(msg)
}

// Finish completes the close notification of c, with err if it is not nil.
// It reports whether this call completed it.
func (c *FakeConn) Finish(err error) bool {
	if err != nil {
		return c.closed.Reject(err)
	}
	return c.closed.Resolve(struct{}{})
}

// Submitted returns a copy of the messages submitted to c, in order.
func (c *FakeConn) Submitted() []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*message.Message(nil), c.submitted...)
}

// Disconnected reports whether Disconnect has been called.
func (c *FakeConn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// CloseCalled reports whether Close has been called.
func (c *FakeConn) CloseCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalled
}

// MustMethodCall constructs a method call message with the given member and
// body, and fails t if that reports an error.
func MustMethodCall(t testing.TB, member string, body any) *message.Message {
	t.Helper()
	m, err := message.NewMethodCall("org.example.Test", "/org/example/Test", "org.example.Test", member, body)
	if err != nil {
		t.Fatalf("NewMethodCall %q failed: %v", member, err)
	}
	return m
}
