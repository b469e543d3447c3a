// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorReply is the Go error corresponding to an error reply message.
type ErrorReply struct {
	Name string // the error name, e.g., "org.freedesktop.DBus.Error.Failed"
	Text string // explanatory text, if any
}

func (e *ErrorReply) Error() string {
	if e.Text == "" {
		return e.Name
	}
	return e.Name + ": " + e.Text
}

// A ValidationError reports a header that is not valid for its message type.
type ValidationError struct {
	Type    Type
	Missing []string // names of required fields that are unset
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s message: missing %s", v.Type, strings.Join(v.Missing, ", "))
}

// Validate reports whether the header of m has the fields required for its
// type. It does not require a serial number, since one is normally assigned
// when the message is written.
func (m *Message) Validate() error {
	h := &m.Header
	var missing []string
	need := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}
	switch h.Type {
	case MethodCall:
		need(h.Path != "", "path")
		need(h.Member != "", "member")
	case Signal:
		need(h.Path != "", "path")
		need(h.Interface != "", "interface")
		need(h.Member != "", "member")
	case MethodReturn:
		need(h.ReplySerial != 0, "reply serial")
	case Error:
		need(h.ErrorName != "", "error name")
		need(h.ReplySerial != 0, "reply serial")
	default:
		return fmt.Errorf("invalid message type %s", h.Type)
	}
	if len(missing) != 0 {
		return &ValidationError{Type: h.Type, Missing: missing}
	}
	if h.Path != "" && !strings.HasPrefix(h.Path, "/") {
		return fmt.Errorf("invalid object path %q", h.Path)
	}
	return nil
}

// Marshal encodes m as a single record for transmission.
func Marshal(m *Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil message")
	}
	return json.Marshal(m)
}

// Unmarshal decodes a record produced by Marshal. It checks that the record
// has a known message type, but does not otherwise validate the header.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Header.Type == Invalid || m.Header.Type > Signal {
		return nil, fmt.Errorf("invalid message type %s", m.Header.Type)
	}
	return &m, nil
}
