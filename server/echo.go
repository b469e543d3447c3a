// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package server

import (
	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
)

// FailedError is the error name used by Echo for failed calls.
const FailedError = "org.freedesktop.DBus.Error.Failed"

// Echo returns a consumer that answers each method call received on ch that
// expects a reply with a return message carrying the body of the call. Other
// messages are ignored. A call to a member named "Fail" is answered with an
// error reply named by FailedError. It is equivalent to EchoWith(nil)(ch).
//
// Echo is suitable for use as the consumer constructor of Loop, and as the
// NewConsumer hook of dbuschan.Options.
func Echo(ch *dbuschan.Channel) dbuschan.MessageConsumer { return EchoWith(nil)(ch) }

// EchoWith returns a consumer constructor that behaves as Echo, using the
// given options. A call that cannot be answered, for example because it has
// no serial number, is logged and counted as "dbus.echo_errors", and no reply
// is sent.
func EchoWith(opts *EchoOptions) func(*dbuschan.Channel) dbuschan.MessageConsumer {
	log := opts.logFunc()
	m := opts.metrics()
	return func(ch *dbuschan.Channel) dbuschan.MessageConsumer {
		return dbuschan.ConsumerFunc(func(msg *message.Message) {
			if !msg.ExpectsReply() {
				return
			}
			var rsp *message.Message
			var err error
			if msg.Header.Member == "Fail" {
				rsp, err = message.NewError(msg, FailedError, bodyString(msg))
			} else {
				rsp, err = message.NewReturn(msg, msg.Body)
			}
			if err != nil {
				m.Count("dbus.echo_errors", 1)
				log("Cannot answer %v: %v", msg, err)
				return
			}
			ch.Write(rsp)
		})
	}
}

// EchoOptions control the behaviour of the consumers constructed by EchoWith.
// A nil *EchoOptions provides sensible defaults.
type EchoOptions struct {
	// If not nil, send debug text logs here.
	Logger dbuschan.Logger

	// If not nil, count unanswerable calls here.
	Metrics *metrics.M
}

func (o *EchoOptions) logFunc() func(string, ...any) {
	if o == nil {
		return dbuschan.Logger(nil).Printf
	}
	return o.Logger.Printf
}

func (o *EchoOptions) metrics() *metrics.M {
	if o == nil {
		return nil
	}
	return o.Metrics
}

func bodyString(msg *message.Message) string {
	var s string
	if msg.UnmarshalBody(&s) != nil {
		return "call failed"
	}
	return s
}
