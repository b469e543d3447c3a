// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"encoding/binary"
	"io"
)

// Varint is a framing that transmits and receives records on r and wc, each
// record prefixed by its length encoded as an unsigned varint as defined by
// the encoding/binary package. This is the default framing for dbuschan
// transports.
func Varint(r io.Reader, wc io.WriteCloser) Channel {
	return &varint{stream: newStream(r, wc)}
}

// A varint implements HalfCloser. Records are framed with a varint length
// prefix.
type varint struct {
	stream
	buf []byte
}

// Send implements part of the Channel interface.
func (c *varint) Send(msg []byte) error {
	c.buf = binary.AppendUvarint(c.buf[:0], uint64(len(msg)))
	c.buf = append(c.buf, msg...)
	_, err := c.wc.Write(c.buf)
	return err
}

// Recv implements part of the Channel interface.
func (c *varint) Recv() ([]byte, error) {
	ln, err := binary.ReadUvarint(c.rd)
	if err != nil {
		return nil, err
	} else if ln > MaxRecordSize {
		return nil, &RecordSizeError{Size: ln}
	}
	out := make([]byte, int(ln))
	if _, err := io.ReadFull(c.rd, out); err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	return out, nil
}
