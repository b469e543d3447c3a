// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan

import (
	"sync/atomic"

	"github.com/creachadair/dbuschan/message"
)

// A MessageConsumer handles inbound messages delivered by a Channel. Messages
// are delivered one at a time, in the order received, on a goroutine owned by
// the transport; the next message is not delivered until ConsumeMessage
// returns. A consumer that needs to do lengthy work should hand it off.
type MessageConsumer interface {
	ConsumeMessage(*message.Message)
}

// ConsumerFunc adapts a function to a MessageConsumer.
type ConsumerFunc func(*message.Message)

// ConsumeMessage implements the MessageConsumer interface.
func (f ConsumerFunc) ConsumeMessage(msg *message.Message) { f(msg) }

// A consumerSlot holds the current consumer of a channel. Replacing the
// consumer is atomic with respect to concurrent reads.
type consumerSlot struct {
	p atomic.Pointer[consumerRef]
}

// consumerRef boxes an interface value so it can be swapped atomically.
type consumerRef struct{ MessageConsumer }

func (s *consumerSlot) set(h MessageConsumer) { s.p.Store(&consumerRef{h}) }

// current returns the installed consumer, or nil if none has been set.
func (s *consumerSlot) current() MessageConsumer {
	if ref := s.p.Load(); ref != nil {
		return ref.MessageConsumer
	}
	return nil
}
