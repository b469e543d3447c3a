// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan

import (
	"sync/atomic"

	"github.com/creachadair/dbuschan/future"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
)

// A Conn is the transport beneath a Channel. It is satisfied by
// *transport.Conn; other implementations must follow the same contract.
type Conn interface {
	// Start begins delivering inbound messages, in order, to deliver.
	Start(deliver func(*message.Message))

	// Submit queues a message for transmission without waiting for it to be
	// sent. Failures are reported by the transport itself.
	Submit(*message.Message)

	// Disconnect requests a graceful half-close without blocking.
	Disconnect()

	// Close requests a full shutdown without blocking.
	Close()

	// CloseFuture returns a source that completes when the transport has
	// fully shut down, reporting an error if the shutdown failed.
	CloseFuture() future.Source[struct{}]
}

// A State describes the lifecycle stage of a Channel.
type State int32

const (
	Open        State = iota // the initial state
	HalfClosing              // Disconnect was called
	Closing                  // Close was called
	Closed                   // the transport has fully shut down (terminal)
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfClosing:
		return "HALF-CLOSING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	}
	return "INVALID"
}

// A Channel is a message channel over a single transport connection. It
// assigns serial numbers to outbound messages, and delivers inbound messages
// to the MessageConsumer currently installed. The methods of a *Channel are
// safe for concurrent use by multiple goroutines, and none of them blocks on
// I/O.
type Channel struct {
	conn   Conn
	serial serialGen
	slot   consumerSlot
	log    func(string, ...any)
	m      *metrics.M

	state  atomic.Int32             // a State value
	closed *future.Future[struct{}] // tracks transport shutdown for State and Err
}

// New constructs a Channel that takes exclusive ownership of conn and starts
// it. Inbound messages are delivered to the consumer given by the options, if
// any; use SetMessageConsumer to install or replace it. New will panic if
// conn == nil.
func New(conn Conn, opts *Options) *Channel {
	if conn == nil {
		panic("nil connection")
	}
	c := &Channel{
		conn: conn,
		log:  opts.logFunc(),
		m:    opts.metrics(),
	}
	if h := opts.consumer(c); h != nil {
		c.slot.set(h)
	}

	channelsActive.Add(1)
	c.closed = future.From(conn.CloseFuture())
	c.closed.Then(func(_ struct{}, err error) {
		c.state.Store(int32(Closed))
		channelsActive.Add(-1)
		c.log("Channel closed, err=%v", err)
	})
	conn.Start(c.deliver)
	return c
}

// AllocateSerial returns a fresh serial number, distinct from all others
// allocated by c until the 32-bit serial space wraps around. It never
// returns 0.
func (c *Channel) AllocateSerial() uint32 {
	serialsAllocated.Add(1)
	return c.serial.allocate()
}

// SetMessageConsumer installs h to receive all inbound messages delivered
// after SetMessageConsumer returns. A message already being handled by the
// previous consumer completes there. It will panic if h == nil.
func (c *Channel) SetMessageConsumer(h MessageConsumer) {
	if h == nil {
		panic("nil message consumer")
	}
	c.slot.set(h)
	consumersSwapped.Add(1)
	c.log("Message consumer replaced")
}

// Write submits msg to the transport for transmission, without waiting for it
// to be sent. If msg has no serial number, a fresh one is allocated and stored
// in msg before it is submitted; otherwise its serial is left unchanged.
//
// Transmission failures are not reported to the caller. They are reported by
// the transport, and if they end the connection, by the close-completion
// future. A write after the channel is closed is logged here and reported by
// the transport as a closed-connection failure. Write will panic if msg == nil.
func (c *Channel) Write(msg *message.Message) {
	if msg == nil {
		panic("nil message")
	}
	if msg.Serial() == 0 {
		msg.SetSerial(c.AllocateSerial())
	}
	if c.State() == Closed {
		c.m.Count("dbus.writes_after_close", 1)
		c.log("Write serial %d after close", msg.Serial())
	}
	messagesWritten.Add(1)
	c.conn.Submit(msg)
}

// Disconnect requests a graceful half-close of the transport. It does not
// block, and does not guarantee delivery of messages already written.
func (c *Channel) Disconnect() {
	c.state.CompareAndSwap(int32(Open), int32(HalfClosing))
	c.conn.Disconnect()
}

// Close requests a full shutdown of the transport. It does not block.
func (c *Channel) Close() {
	for {
		old := c.state.Load()
		if State(old) >= Closing || c.state.CompareAndSwap(old, int32(Closing)) {
			break
		}
	}
	c.conn.Close()
}

// CloseCompletion returns a new future that completes when the transport has
// fully shut down. It resolves successfully if the shutdown was clean, or is
// rejected with the error reported by the transport, unchanged, if the
// shutdown failed. The future cannot be used to cancel the shutdown.
//
// The futures returned are fed from a single listener on the transport. A
// call before shutdown holds one continuation until the transport closes; a
// call after shutdown returns a future that is already complete.
func (c *Channel) CloseCompletion() *future.Future[struct{}] {
	return future.From[struct{}](c.closed)
}

// State reports the current lifecycle state of c.
func (c *Channel) State() State { return State(c.state.Load()) }

// Err reports the error that ended the transport, or nil if c is not closed
// or was closed cleanly.
func (c *Channel) Err() error {
	if _, err := c.closed.Result(); err != future.ErrPending {
		return err
	}
	return nil
}

// deliver dispatches msg to the current consumer. It is called by the
// transport, one message at a time.
func (c *Channel) deliver(msg *message.Message) {
	h := c.slot.current()
	if h == nil {
		c.m.Count("dbus.messages_dropped", 1)
		c.log("No consumer; dropping %v", msg)
		return
	}
	messagesDelivered.Add(1)
	h.ConsumeMessage(msg)
}
