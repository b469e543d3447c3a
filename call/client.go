// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package call implements method calls over a dbuschan.Channel.
//
// A *Client installs itself as the message consumer of a channel. Each method
// call it writes is registered by serial number, and the reply whose reply
// serial matches completes the pending call:
//
//	cli := call.New(ch, nil)
//	msg, err := message.NewMethodCall(dest, path, iface, "Frob", body)
//	...
//	rsp, err := cli.Call(ctx, msg)
//
// Messages that are not replies to a pending call are passed to the fallback
// consumer given in the options, if any.
package call

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/future"
	"github.com/creachadair/dbuschan/message"
)

// ErrClosed is reported for calls pending when the channel closed cleanly,
// and for calls issued after that.
var ErrClosed = errors.New("channel is closed")

// A Client issues method calls on a channel and correlates their replies.
// The methods of a *Client are safe for concurrent use by multiple goroutines.
type Client struct {
	ch       *dbuschan.Channel
	log      func(string, ...any)
	fallback dbuschan.MessageConsumer // may be nil

	mu      sync.Mutex
	pending map[uint32]*future.Future[*message.Message] // calls awaiting a reply, by serial
	err     error                                       // set once the channel has closed
}

// New constructs a client that issues calls on ch, and installs it as the
// message consumer of ch. New will panic if ch == nil.
//
// When the channel closes, calls still pending fail with the error that ended
// the channel, or with ErrClosed if it closed cleanly.
func New(ch *dbuschan.Channel, opts *Options) *Client {
	if ch == nil {
		panic("nil channel")
	}
	c := &Client{
		ch:       ch,
		log:      opts.logFunc(),
		fallback: opts.fallback(),
		pending:  make(map[uint32]*future.Future[*message.Message]),
	}
	ch.SetMessageConsumer(c)
	ch.CloseCompletion().Then(func(_ struct{}, err error) { c.stop(err) })
	return c
}

// Go writes msg to the channel and returns a future for its reply, without
// waiting for the reply to arrive. If msg has no serial number, one is
// allocated. An error reply rejects the future with a *message.ErrorReply.
//
// If msg does not expect a reply, the future is resolved with nil once msg
// has been written. If msg is not valid, the future is rejected with the
// validation error and msg is not written. Go will panic if msg == nil.
func (c *Client) Go(msg *message.Message) *future.Future[*message.Message] {
	if msg == nil {
		panic("nil message")
	}
	if err := msg.Validate(); err != nil {
		return future.Rejected[*message.Message](err)
	}
	if !msg.ExpectsReply() {
		c.ch.Write(msg)
		return future.Resolved[*message.Message](nil)
	}
	if msg.Serial() == 0 {
		msg.SetSerial(c.ch.AllocateSerial())
	}

	// Register the call before writing it, so that a prompt reply finds it.
	f := future.New[*message.Message]()
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		f.Reject(err)
		return f
	}
	if _, dup := c.pending[msg.Serial()]; dup {
		c.mu.Unlock()
		f.Reject(&DuplicateSerialError{Serial: msg.Serial()})
		return f
	}
	c.pending[msg.Serial()] = f
	c.mu.Unlock()

	c.log("Outbound call %v", msg)
	c.ch.Write(msg)
	return f
}

// Call writes msg to the channel and blocks until its reply arrives or ctx
// ends. It returns the reply message, or an error. If ctx ends first, the
// pending call is abandoned, and a reply that arrives later is discarded.
func (c *Client) Call(ctx context.Context, msg *message.Message) (*message.Message, error) {
	f := c.Go(msg)
	rsp, err := f.Wait(ctx)
	if err != nil && !f.Ready() {
		c.abandon(msg.Serial())
	}
	return rsp, err
}

// CallResult issues a call via c, and decodes the body of its reply into a
// value of type T.
func CallResult[T any](ctx context.Context, c *Client, msg *message.Message) (T, error) {
	var out T
	rsp, err := c.Call(ctx, msg)
	if err != nil {
		return out, err
	}
	if err := rsp.UnmarshalBody(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Pending reports the number of calls awaiting a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close closes the channel and blocks until it has shut down. It returns the
// error that ended the channel, or nil if it closed cleanly.
func (c *Client) Close() error {
	c.ch.Close()
	_, err := c.ch.CloseCompletion().Get()
	return err
}

// ConsumeMessage implements the dbuschan.MessageConsumer interface. A reply
// to a pending call completes that call; other messages are passed to the
// fallback consumer, or discarded if there is none.
func (c *Client) ConsumeMessage(msg *message.Message) {
	switch msg.Header.Type {
	case message.MethodReturn, message.Error:
		c.mu.Lock()
		f, ok := c.pending[msg.Header.ReplySerial]
		delete(c.pending, msg.Header.ReplySerial)
		c.mu.Unlock()

		if !ok {
			c.log("Discarding reply for unknown serial %d", msg.Header.ReplySerial)
			return
		}
		if err := msg.Err(); err != nil {
			f.Reject(err)
		} else {
			f.Resolve(msg)
		}
		return
	}
	if c.fallback != nil {
		c.fallback.ConsumeMessage(msg)
	} else {
		c.log("No fallback; discarding %v", msg)
	}
}

func (c *Client) abandon(serial uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, serial)
}

// stop fails all pending calls when the channel has closed.
func (c *Client) stop(err error) {
	if err == nil {
		err = ErrClosed
	}
	c.mu.Lock()
	c.err = err
	pending := c.pending
	c.pending = make(map[uint32]*future.Future[*message.Message])
	c.mu.Unlock()

	if len(pending) != 0 {
		c.log("Failing %d pending calls: %v", len(pending), err)
	}
	for _, f := range pending {
		f.Reject(err)
	}
}

// DuplicateSerialError reports a call whose serial number is already in use
// by another pending call.
type DuplicateSerialError struct {
	Serial uint32
}

func (e *DuplicateSerialError) Error() string {
	return "duplicate pending serial " + strconv.FormatUint(uint64(e.Serial), 10)
}
