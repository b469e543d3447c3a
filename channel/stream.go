// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bufio"
	"io"
)

// A Framing converts a reader and a writer into a Channel with a particular
// record-framing discipline.
type Framing func(io.Reader, io.WriteCloser) Channel

// Pipe creates a pair of connected in-memory channels using the specified
// framing discipline. Sends to client will be received by server, and vice
// versa. Pipe will panic if framing == nil.
func Pipe(framing Framing) (client, server Channel) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	client = framing(cr, cw)
	server = framing(sr, sw)
	return
}

// stream holds the plumbing shared by the framings that carry records on a
// byte stream. It implements the closing methods of HalfCloser.
type stream struct {
	src io.Reader // the original reader, closed by Close if possible
	rd  *bufio.Reader
	wc  io.WriteCloser
}

func newStream(r io.Reader, wc io.WriteCloser) stream {
	return stream{src: r, rd: bufio.NewReader(r), wc: wc}
}

// CloseWrite implements part of the HalfCloser interface. If the writer can
// shut down its sending half (as a *net.TCPConn or *net.UnixConn can), that is
// used; otherwise the writer is closed.
func (s stream) CloseWrite() error {
	if cw, ok := s.wc.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return s.wc.Close()
}

// Close implements part of the Channel interface. It closes the writer, and
// also the reader if it is a separate io.Closer, so that a pending Recv is
// unblocked.
func (s stream) Close() error {
	err := s.wc.Close()
	if rc, ok := s.src.(io.Closer); ok && rc != s.wc {
		if rerr := rc.Close(); err == nil {
			err = rerr
		}
	}
	return err
}
