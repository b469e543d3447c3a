// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package transport

import (
	"fmt"

	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
	"golang.org/x/time/rate"
)

// Options control the behaviour of a Conn created by New.
// A nil *Options provides sensible defaults.
type Options struct {
	// If not nil, send debug text logs here.
	Logger func(text string)

	// If not nil, this function is called for each message that could not be
	// submitted for transmission, for example because the Conn is closed or
	// the message could not be encoded. By default, failures are logged.
	OnSubmitError func(msg *message.Message, err error)

	// If positive, limits outbound transmission to this many messages per
	// second. Zero means no limit.
	WriteLimit rate.Limit

	// The burst size permitted by WriteLimit. A value less than 1 is treated
	// as 1. Ignored if WriteLimit is zero.
	WriteBurst int

	// If not nil, record transport counters here.
	Metrics *metrics.M
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return func(msg string, args ...any) { o.Logger(fmt.Sprintf(msg, args...)) }
}

func (o *Options) limiter() *rate.Limiter {
	if o == nil || o.WriteLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(o.WriteLimit, max(o.WriteBurst, 1))
}

func (o *Options) metrics() *metrics.M {
	if o == nil {
		return nil
	}
	return o.Metrics
}

func (o *Options) submitError(log func(string, ...any), m *metrics.M) func(*message.Message, error) {
	if o != nil && o.OnSubmitError != nil {
		user := o.OnSubmitError
		return func(msg *message.Message, err error) {
			m.Count("dbus.submit_errors", 1)
			user(msg, err)
		}
	}
	return func(msg *message.Message, err error) {
		m.Count("dbus.submit_errors", 1)
		log("Submit failed for %v: %v", msg, err)
	}
}
