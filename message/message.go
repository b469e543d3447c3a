// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package message defines the protocol messages exchanged on a dbuschan
// channel. A message consists of a header, describing its type, routing and
// serial number, and an opaque body.
//
// The serial number of a message is zero until it is assigned, typically by
// the channel when the message is written.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// A Type identifies the kind of a message.
type Type uint8

// Message types, numbered as in the D-Bus specification.
const (
	Invalid      Type = iota // not a valid message
	MethodCall               // a method invocation
	MethodReturn             // the successful reply to a method call
	Error                    // the error reply to a method call
	Signal                   // a broadcast signal emission
)

var typeName = [...]string{
	Invalid:      "invalid",
	MethodCall:   "method_call",
	MethodReturn: "method_return",
	Error:        "error",
	Signal:       "signal",
}

func (t Type) String() string {
	if int(t) < len(typeName) {
		return typeName[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Flags modify the handling of a message.
type Flags uint8

const (
	// NoReplyExpected marks a method call whose caller does not want a reply.
	NoReplyExpected Flags = 1 << iota

	// NoAutoStart asks the bus not to launch the destination on demand.
	NoAutoStart

	// AllowInteractiveAuthorization permits the receiver to prompt the user.
	AllowInteractiveAuthorization
)

// A Header carries the routing and bookkeeping fields of a message.
type Header struct {
	Type   Type   `json:"type"`
	Flags  Flags  `json:"flags,omitempty"`
	Serial uint32 `json:"serial,omitempty"` // 0 means unassigned

	ReplySerial uint32 `json:"replySerial,omitempty"`
	Path        string `json:"path,omitempty"`
	Interface   string `json:"interface,omitempty"`
	Member      string `json:"member,omitempty"`
	ErrorName   string `json:"errorName,omitempty"`
	Destination string `json:"destination,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// A Message is a single protocol message.
type Message struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Serial returns the serial number of m, or 0 if none is assigned.
func (m *Message) Serial() uint32 { return m.Header.Serial }

// SetSerial sets the serial number of m.
func (m *Message) SetSerial(serial uint32) { m.Header.Serial = serial }

// ExpectsReply reports whether m is a method call that wants a reply.
func (m *Message) ExpectsReply() bool {
	return m.Header.Type == MethodCall && m.Header.Flags&NoReplyExpected == 0
}

// UnmarshalBody decodes the body of m into v. It is an error if m has no body.
func (m *Message) UnmarshalBody(v any) error {
	if len(m.Body) == 0 {
		return errors.New("message has no body")
	}
	return json.Unmarshal(m.Body, v)
}

// Err returns the error carried by an error reply, or nil if m is not an error
// reply.
func (m *Message) Err() error {
	if m.Header.Type != Error {
		return nil
	}
	return &ErrorReply{Name: m.Header.ErrorName, Text: bodyText(m.Body)}
}

func (m *Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s serial=%d", m.Header.Type, m.Header.Serial)
	if m.Header.ReplySerial != 0 {
		fmt.Fprintf(&sb, " reply=%d", m.Header.ReplySerial)
	}
	if m.Header.Path != "" {
		fmt.Fprintf(&sb, " path=%s", m.Header.Path)
	}
	if name := memberName(m.Header.Interface, m.Header.Member); name != "" {
		fmt.Fprintf(&sb, " member=%s", name)
	}
	if m.Header.ErrorName != "" {
		fmt.Fprintf(&sb, " error=%s", m.Header.ErrorName)
	}
	return sb.String()
}

func memberName(iface, member string) string {
	if iface == "" {
		return member
	}
	return iface + "." + member
}

// NewMethodCall constructs a method call to the given member of the object at
// path on dest. If body != nil it is encoded as the message body.
func NewMethodCall(dest, path, iface, member string, body any) (*Message, error) {
	bits, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header: Header{
			Type:        MethodCall,
			Destination: dest,
			Path:        path,
			Interface:   iface,
			Member:      member,
		},
		Body: bits,
	}, nil
}

// NewSignal constructs a signal emitted by the object at path.
func NewSignal(path, iface, member string, body any) (*Message, error) {
	bits, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header: Header{Type: Signal, Path: path, Interface: iface, Member: member},
		Body:   bits,
	}, nil
}

// NewReturn constructs a successful reply to call. The call must already have
// a serial number assigned.
func NewReturn(call *Message, body any) (*Message, error) {
	if call.Header.Serial == 0 {
		return nil, errors.New("reply to a call without a serial")
	}
	bits, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header: Header{
			Type:        MethodReturn,
			ReplySerial: call.Header.Serial,
			Destination: call.Header.Sender,
		},
		Body: bits,
	}, nil
}

// NewError constructs an error reply to call with the given error name and
// explanatory text.
func NewError(call *Message, name, text string) (*Message, error) {
	if call.Header.Serial == 0 {
		return nil, errors.New("reply to a call without a serial")
	}
	if name == "" {
		return nil, errors.New("empty error name")
	}
	bits, err := encodeBody(text)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header: Header{
			Type:        Error,
			ReplySerial: call.Header.Serial,
			ErrorName:   name,
			Destination: call.Header.Sender,
			Signature:   "s",
		},
		Body: bits,
	}, nil
}

func encodeBody(body any) (json.RawMessage, error) {
	switch t := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(t) == 0 {
			return nil, nil
		} else if !json.Valid(t) {
			return nil, errors.New("invalid JSON body")
		}
		return t, nil
	}
	return json.Marshal(body)
}

// bodyText extracts a human-readable explanation from the body of an error
// reply. By convention the first argument of an error is a string.
func bodyText(body json.RawMessage) string {
	var s string
	if json.Unmarshal(body, &s) == nil {
		return s
	}
	var args []json.RawMessage
	if json.Unmarshal(body, &args) == nil && len(args) != 0 {
		if json.Unmarshal(args[0], &s) == nil {
			return s
		}
	}
	return ""
}
