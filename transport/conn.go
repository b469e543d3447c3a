// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package transport implements a message transport over a channel.Channel.
//
// A *Conn encodes outbound messages into records, queues them, and sends them
// on its channel from a dedicated goroutine, so that Submit never blocks on
// I/O. A second goroutine receives inbound records, decodes them, and passes
// each message in order to a delivery function. When the connection shuts
// down, its close Promise is completed, with an error if the shutdown was
// caused by an I/O failure.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/creachadair/dbuschan/channel"
	"github.com/creachadair/dbuschan/future"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
	"github.com/creachadair/mds/queue"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrClosed is reported for a message submitted after the Conn has begun to
// shut down its sending half.
var ErrClosed = errors.New("transport is closed")

// A State describes the lifecycle stage of a Conn.
type State int32

const (
	Open        State = iota // sending and receiving
	HalfClosing              // draining queued messages before a half-close
	Closing                  // shutting down
	Closed                   // fully shut down
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfClosing:
		return "half-closing"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "invalid"
}

// A Conn is a message transport over a channel.Channel. The Conn has exclusive
// ownership of its channel. The methods of a *Conn are safe for concurrent use
// by multiple goroutines.
type Conn struct {
	ch      channel.Channel
	log     func(string, ...any)
	onErr   func(*message.Message, error)
	limit   *rate.Limiter // nil if outbound writes are not paced
	m       *metrics.M
	promise *Promise
	work    chan struct{} // signals the writer that there may be work
	stopped atomic.Bool   // set when the channel has been (or is being) closed

	mu      sync.Mutex // protects the fields below
	state   State
	out     *queue.Queue[[]byte] // encoded records awaiting transmission
	started bool

	closeOnce sync.Once
	closeErr  error // the result of closing ch
}

// New constructs a new unstarted Conn that transmits and receives messages on
// ch. To begin receiving, call Start. New will panic if ch == nil.
func New(ch channel.Channel, opts *Options) *Conn {
	if ch == nil {
		panic("nil channel")
	}
	log := opts.logFunc()
	m := opts.metrics()
	return &Conn{
		ch:      ch,
		log:     log,
		onErr:   opts.submitError(log, m),
		limit:   opts.limiter(),
		m:       m,
		promise: newPromise(),
		work:    make(chan struct{}, 1),
		out:     queue.New[[]byte](),
	}
}

// Start begins processing on c. Each message received is passed to deliver,
// in order, on a goroutine owned by c; the next message is not received until
// deliver returns. Start does not block. It will panic if deliver == nil or
// if c has already been started.
//
// The close Promise of c is not completed until after Start is called.
func (c *Conn) Start(deliver func(*message.Message)) {
	if deliver == nil {
		panic("nil delivery function")
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		panic("transport is already started")
	}
	c.started = true
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return c.read(deliver) })
	g.Go(func() error { return c.write(ctx) })
	go func() {
		err := g.Wait()
		if cerr := c.shutdown(); err == nil {
			err = cerr
		}
		c.mu.Lock()
		c.state = Closed
		c.mu.Unlock()
		c.log("Transport closed, err=%v", err)
		c.promise.complete(err)
	}()
}

// Submit encodes msg and queues it for transmission. It does not wait for
// the message to be sent. If c is no longer accepting messages, or msg cannot
// be encoded, the failure is reported to the OnSubmitError hook from the
// options and msg is discarded.
func (c *Conn) Submit(msg *message.Message) {
	rec, err := message.Marshal(msg)
	if err != nil {
		c.onErr(msg, err)
		return
	}
	c.mu.Lock()
	if c.state != Open {
		c.mu.Unlock()
		c.onErr(msg, ErrClosed)
		return
	}
	c.out.Add(rec)
	c.m.SetMaxValue("dbus.queue_depth", int64(c.out.Len()))
	c.mu.Unlock()
	c.signal()
}

// Disconnect requests a graceful half-close: Messages already queued are
// sent, and then the sending half of the channel is shut down. The Conn
// closes fully once the peer finishes sending. Disconnect does not block.
// If the channel is not a channel.HalfCloser, it is closed fully once the
// queue drains.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	ok := c.state == Open
	if ok {
		c.state = HalfClosing
	}
	c.mu.Unlock()
	if ok {
		c.log("Disconnect requested")
		c.signal()
	}
}

// Close requests a full shutdown of c. Messages still queued are discarded.
// Close does not block; use the close Promise to wait for completion.
func (c *Conn) Close() {
	c.log("Close requested")
	c.shutdown()
}

// State reports the current lifecycle state of c.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CloseFuture returns the close notification of c.
func (c *Conn) CloseFuture() future.Source[struct{}] { return c.promise }

// Done returns a channel that is closed when c has fully shut down.
func (c *Conn) Done() <-chan struct{} { return c.promise.Done() }

// Err reports the error that ended c, or nil if c is still running or shut
// down cleanly.
func (c *Conn) Err() error { return c.promise.Err() }

// read receives, decodes, and delivers inbound messages until the channel
// reports an error or end of input.
func (c *Conn) read(deliver func(*message.Message)) error {
	// Once the peer is done sending, or the channel fails, shut down.
	defer c.shutdown()
	for {
		rec, err := c.ch.Recv()
		if err != nil {
			if err == io.EOF || c.stopped.Load() {
				return nil
			}
			c.log("Receive failed: %v", err)
			return err
		}
		c.m.Count("dbus.bytes_read", int64(len(rec)))

		msg, err := message.Unmarshal(rec)
		if err != nil {
			c.m.Count("dbus.decode_errors", 1)
			c.log("Discarding invalid record: %v", err)
			continue
		}
		c.m.Count("dbus.messages_read", 1)
		deliver(msg)
	}
}

// write transmits queued records until c shuts down or a half-close is
// requested and the queue is empty.
func (c *Conn) write(ctx context.Context) error {
	for {
		if c.stopped.Load() {
			return nil
		}
		rec, drain, ok := c.next()
		if !ok {
			if drain {
				return c.halfClose()
			}
			select {
			case <-c.work:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if c.limit != nil {
			if err := c.limit.Wait(ctx); err != nil {
				return nil // the group context ended
			}
		}
		if err := c.ch.Send(rec); err != nil {
			if c.stopped.Load() {
				return nil
			}
			c.log("Send failed: %v", err)
			c.shutdown()
			return err
		}
		c.m.Count("dbus.bytes_written", int64(len(rec)))
		c.m.Count("dbus.messages_written", 1)
	}
}

// next removes and returns the next queued record, if any. If the queue is
// empty, drain reports whether a half-close has been requested.
func (c *Conn) next() (rec []byte, drain, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.out.Pop(); ok {
		return rec, false, true
	}
	return nil, c.state == HalfClosing, false
}

func (c *Conn) halfClose() error {
	hc, ok := c.ch.(channel.HalfCloser)
	if !ok {
		c.log("Channel does not support half-close; closing")
		c.shutdown() // the error, if any, is reported at completion
		return nil
	}
	if err := hc.CloseWrite(); err != nil && !c.stopped.Load() {
		c.shutdown()
		return err
	}
	c.log("Sending half closed")
	return nil
}

// shutdown closes the channel, discarding any queued records. Only the first
// call has any effect; all calls report the result of closing the channel.
func (c *Conn) shutdown() error {
	c.closeOnce.Do(func() {
		c.stopped.Store(true)
		c.mu.Lock()
		if c.state != Closed {
			c.state = Closing
		}
		if n := c.out.Len(); n != 0 {
			c.log("Discarding %d queued messages", n)
			c.out.Clear()
		}
		c.mu.Unlock()
		c.signal()
		c.closeErr = c.ch.Close()
	})
	return c.closeErr
}

func (c *Conn) signal() {
	select {
	case c.work <- struct{}{}:
	default:
	}
}
