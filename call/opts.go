// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package call

import "github.com/creachadair/dbuschan"

// Options control the behaviour of a Client created by New.
// A nil *Options provides sensible defaults.
type Options struct {
	// If not nil, send debug text logs here.
	Logger dbuschan.Logger

	// If not nil, inbound messages that are not replies to a pending call,
	// such as signals and incoming method calls, are passed here.
	Fallback dbuschan.MessageConsumer
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return o.Logger.Printf
}

func (o *Options) fallback() dbuschan.MessageConsumer {
	if o == nil {
		return nil
	}
	return o.Fallback
}
