// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package channel defines the byte-record channels that carry encoded
// messages beneath a dbuschan transport.
//
// A Channel transmits and receives opaque records. It does not interpret the
// contents of a record, but may add and remove framing so that records can be
// carried on a byte stream. A Framing constructs a Channel from a reader and a
// writer, such as the two halves of a net.Conn:
//
//	conn, err := net.Dial("unix", addr)
//	...
//	ch := channel.Varint(conn, conn)
//
// Channels that can shut down their outbound half independently of the
// inbound half implement HalfCloser.
package channel

// A Channel represents the ability to transmit and receive data records. The
// methods of a Channel need not be safe for concurrent use, except that Send
// and Recv may be called concurrently with each other, and Close may be called
// concurrently with both to unblock them.
type Channel interface {
	// Send transmits a record on the channel.
	Send([]byte) error

	// Recv returns the next available record from the channel. If no further
	// records are available, it returns io.EOF.
	Recv() ([]byte, error)

	// Close shuts down the channel, after which no further records may be
	// sent or received.
	Close() error
}

// A HalfCloser is a Channel whose outbound half can be shut down while the
// inbound half remains readable. After CloseWrite, the peer receives io.EOF
// once it has read all the records sent before the call.
type HalfCloser interface {
	Channel

	// CloseWrite shuts down the sending half of the channel.
	CloseWrite() error
}
