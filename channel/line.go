// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bufio"
	"bytes"
	"io"
)

// Line is a framing that transmits and receives records on r and wc with line
// framing. Each record is terminated by a Unicode LF (10), and LF are stripped
// from outbound records. Line is suitable for records whose encoding does not
// otherwise use LF, such as compact JSON.
func Line(r io.Reader, wc io.WriteCloser) Channel {
	return &line{stream: newStream(r, wc)}
}

// A line implements HalfCloser. Records are framed by terminating newlines.
type line struct {
	stream
	buf bytes.Buffer
}

// Send implements part of the Channel interface.
func (c *line) Send(msg []byte) error {
	c.buf.Reset()
	for _, b := range msg {
		if b != '\n' {
			c.buf.WriteByte(b)
		}
	}
	c.buf.WriteByte('\n')
	_, err := c.wc.Write(c.buf.Bytes())
	return err
}

// Recv implements part of the Channel interface. Empty lines are skipped.
func (c *line) Recv() ([]byte, error) {
	var rec []byte
	for {
		chunk, err := c.rd.ReadSlice('\n')
		rec = append(rec, chunk...)
		if err == bufio.ErrBufferFull {
			if len(rec) > MaxRecordSize {
				return nil, &RecordSizeError{Size: uint64(len(rec))}
			}
			continue // incomplete line
		} else if err != nil {
			if err == io.EOF && len(rec) != 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		} else if len(rec) <= 1 {
			rec = rec[:0]
			continue // empty line
		}
		if len(rec) > MaxRecordSize {
			return nil, &RecordSizeError{Size: uint64(len(rec))}
		}
		return rec[:len(rec)-1], nil
	}
}
