// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is reported by Send on a direct channel whose sending half has
// been shut down, or whose peer is closed.
var ErrClosed = errors.New("send on closed channel")

// Direct returns a pair of synchronous connected channels that pass record
// buffers directly in memory without framing or encoding. Sends to client will
// be received by server, and vice versa. Both channels implement HalfCloser.
func Direct() (client, server Channel) {
	c2s := make(chan []byte)
	s2c := make(chan []byte)
	cdone := make(chan struct{})
	sdone := make(chan struct{})
	client = &direct{send: c2s, recv: s2c, done: cdone, peer: sdone}
	server = &direct{send: s2c, recv: c2s, done: sdone, peer: cdone}
	return
}

type direct struct {
	send chan<- []byte
	recv <-chan []byte
	done chan struct{}   // closed when this end is fully closed
	peer <-chan struct{} // closed when the other end is fully closed

	wonce sync.Once
	conce sync.Once
}

// Send implements part of the Channel interface.
func (d *direct) Send(msg []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = ErrClosed // the send half was shut down
		}
	}()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	select {
	case d.send <- cp:
		return nil
	case <-d.done:
		return ErrClosed
	case <-d.peer:
		return ErrClosed
	}
}

// Recv implements part of the Channel interface.
func (d *direct) Recv() ([]byte, error) {
	select {
	case msg, ok := <-d.recv:
		if ok {
			return msg, nil
		}
		return nil, io.EOF
	case <-d.done:
		return nil, io.EOF
	}
}

// CloseWrite implements the HalfCloser interface.
func (d *direct) CloseWrite() error {
	d.wonce.Do(func() { close(d.send) })
	return nil
}

// Close implements part of the Channel interface.
func (d *direct) Close() error {
	d.CloseWrite()
	d.conce.Do(func() { close(d.done) })
	return nil
}
