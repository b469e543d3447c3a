// Copyright (C) 2019 Michael J. Fromberger. All Rights Reserved.

package server

import (
	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/channel"
	"github.com/creachadair/dbuschan/transport"
)

// Local constructs a pair of channels connected to each other in memory.
// Messages written to client are delivered to the consumer of peer, and vice
// versa. If opts == nil, it behaves as if all the options are nil.
//
// Closing either channel closes the other once its transport sees the end of
// input.
func Local(opts *LocalOptions) (client, peer *dbuschan.Channel) {
	if opts == nil {
		opts = new(LocalOptions)
	}
	cch, pch := channel.Direct()
	peer = dbuschan.New(transport.New(pch, opts.Transport), opts.PeerOptions)
	client = dbuschan.New(transport.New(cch, opts.Transport), opts.ClientOptions)
	return client, peer
}

// LocalOptions control the behaviour of the channels constructed by the Local
// function.
type LocalOptions struct {
	ClientOptions *dbuschan.Options
	PeerOptions   *dbuschan.Options

	// The transport options used for both channels.
	Transport *transport.Options
}
