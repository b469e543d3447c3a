// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package dbuschan

import (
	"fmt"
	"log"

	"github.com/creachadair/dbuschan/metrics"
)

// Options control the behaviour of a Channel created by New.
// A nil *Options provides sensible defaults.
type Options struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// If not nil, this function is called once by New, before the transport
	// is started, and the consumer it returns (if not nil) is installed as the
	// initial message consumer. This allows a consumer that refers to the
	// channel to see every inbound message.
	NewConsumer func(*Channel) MessageConsumer

	// If not nil, record per-channel counters here.
	Metrics *metrics.M
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return o.Logger.Printf
}

func (o *Options) consumer(c *Channel) MessageConsumer {
	if o == nil || o.NewConsumer == nil {
		return nil
	}
	return o.NewConsumer(c)
}

func (o *Options) metrics() *metrics.M {
	if o == nil {
		return nil
	}
	return o.Metrics
}

// A Logger records text logs from a channel or its collaborators. A nil logger
// discards text log input.
type Logger func(text string)

// Printf writes a formatted message to the logger. If lg == nil, the message
// is discarded.
func (lg Logger) Printf(msg string, args ...any) {
	if lg != nil {
		lg(fmt.Sprintf(msg, args...))
	}
}

// StdLogger adapts a *log.Logger to a Logger. If logger == nil, the returned
// function sends logs to the default logger.
func StdLogger(logger *log.Logger) Logger {
	if logger == nil {
		return func(text string) { log.Output(2, text) }
	}
	return func(text string) { logger.Output(2, text) }
}
