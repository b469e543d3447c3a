// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header returns a framing that transmits and receives records using a header
// prefix similar to HTTP, in which the value of mimeType describes the record
// encoding. Each record is sent in the format:
//
//	Content-Type: <mime-type>\r\n
//	Content-Length: <nbytes>\r\n
//	\r\n
//	<payload>
//
// The length (nbytes) is encoded as decimal digits. If mimeType == "", the
// Content-Type header is omitted on send and not checked on receipt.
// Unknown header fields are ignored.
func Header(mimeType string) Framing {
	return func(r io.Reader, wc io.WriteCloser) Channel {
		return &hdr{mtype: mimeType, stream: newStream(r, wc)}
	}
}

// An hdr implements HalfCloser. Records are framed as a header/body
// transaction, similar to HTTP.
type hdr struct {
	stream
	mtype string
	buf   bytes.Buffer
}

// Send implements part of the Channel interface.
func (h *hdr) Send(msg []byte) error {
	h.buf.Reset()
	if h.mtype != "" {
		fmt.Fprintf(&h.buf, "Content-Type: %s\r\n", h.mtype)
	}
	fmt.Fprintf(&h.buf, "Content-Length: %d\r\n\r\n", len(msg))
	h.buf.Write(msg)
	_, err := h.wc.Write(h.buf.Bytes())
	return err
}

// Recv implements part of the Channel interface.
func (h *hdr) Recv() ([]byte, error) {
	p := make(map[string]string)
	for {
		raw, err := h.rd.ReadString('\n')
		line := strings.TrimRight(raw, "\r\n")
		if line != "" {
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				return nil, errors.New("invalid header line")
			}
			p[strings.ToLower(key)] = strings.TrimSpace(val)
		}
		if err == io.EOF {
			if len(p) == 0 {
				return nil, io.EOF // clean end of stream between records
			}
			return nil, io.ErrUnexpectedEOF
		} else if err != nil {
			return nil, err
		} else if line == "" && len(p) != 0 {
			break
		}
	}

	if h.mtype != "" {
		if got := p["content-type"]; got != h.mtype {
			return nil, fmt.Errorf("content-type mismatch: got %q, want %q", got, h.mtype)
		}
	}
	clen, ok := p["content-length"]
	if !ok {
		return nil, errors.New("missing required content-length")
	}
	size, err := strconv.ParseUint(clen, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid content-length: %w", err)
	} else if size > MaxRecordSize {
		return nil, &RecordSizeError{Size: size}
	}

	// N.B. Use ReadFull, since the buffered reader may not hold the whole
	// record and will issue only a single read to the underlying source.
	data := make([]byte, size)
	if _, err := io.ReadFull(h.rd, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}
