// Copyright (C) 2019 Michael J. Fromberger. All Rights Reserved.

// Package server provides support routines for serving message channels.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/channel"
	"github.com/creachadair/dbuschan/metrics"
	"github.com/creachadair/dbuschan/transport"
	"golang.org/x/sync/semaphore"
)

// Loop obtains connections from lst and serves each as a *dbuschan.Channel,
// in a new goroutine, until the channel closes. The consumer for each channel
// is constructed by newConsumer, which is called once per connection before
// any message is delivered.
//
// Loop runs until lst fails or ctx ends. When ctx ends, lst and all active
// channels are closed. In either case, Loop waits for all active channels to
// finish before returning. Loop returns nil if it was ended by ctx, otherwise
// the error reported by lst. Loop will panic if newConsumer == nil.
func Loop(ctx context.Context, lst net.Listener, newConsumer func(*dbuschan.Channel) dbuschan.MessageConsumer, opts *LoopOptions) error {
	if newConsumer == nil {
		panic("nil consumer constructor")
	}
	log := opts.logFunc()
	sem := semaphore.NewWeighted(opts.maxConns())
	stop := context.AfterFunc(ctx, func() { lst.Close() })
	defer stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	active := make(map[*dbuschan.Channel]struct{})
	closeActive := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		for ch := range active {
			ch.Close()
		}
	})
	defer closeActive()

	var err error
	for {
		if aerr := sem.Acquire(ctx, 1); aerr != nil {
			break // ctx ended
		}
		conn, aerr := lst.Accept()
		if aerr != nil {
			sem.Release(1)
			if ctx.Err() == nil && !errors.Is(aerr, net.ErrClosed) {
				log("Error accepting new connection: %v", aerr)
				err = aerr
			}
			break
		}

		ch := dbuschan.New(transport.New(opts.framing()(conn, conn), opts.transportOptions()), &dbuschan.Options{
			Logger:      opts.logger(),
			NewConsumer: newConsumer,
			Metrics:     opts.metrics(),
		})
		mu.Lock()
		active[ch] = struct{}{}
		mu.Unlock()
		if ctx.Err() != nil {
			ch.Close() // lost the race with closeActive
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if _, err := ch.CloseCompletion().Get(); err != nil {
				log("Channel exit: %v", err)
			}
			mu.Lock()
			delete(active, ch)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return err
}

// LoopOptions control the behaviour of the Loop function.  A nil *LoopOptions
// provides default values as described.
type LoopOptions struct {
	// If non-nil, this function is used to convert a network connection into
	// a record channel. If nil, channel.Varint is used.
	Framing channel.Framing

	// If positive, at most this many connections are served concurrently; the
	// loop does not accept another until one closes. If zero or negative,
	// there is no limit.
	MaxConns int

	// If not nil, send debug text logs here.
	Logger dbuschan.Logger

	// If not nil, the transport of each connection is created with these
	// options.
	Transport *transport.Options

	// If not nil, record per-channel counters here. This is shared among all
	// the channels served.
	Metrics *metrics.M
}

func (o *LoopOptions) framing() channel.Framing {
	if o == nil || o.Framing == nil {
		return channel.Varint
	}
	return o.Framing
}

func (o *LoopOptions) maxConns() int64 {
	if o == nil || o.MaxConns <= 0 {
		return 1 << 62
	}
	return int64(o.MaxConns)
}

func (o *LoopOptions) logger() dbuschan.Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

func (o *LoopOptions) logFunc() func(string, ...any) { return o.logger().Printf }

func (o *LoopOptions) transportOptions() *transport.Options {
	if o == nil {
		return nil
	}
	return o.Transport
}

func (o *LoopOptions) metrics() *metrics.M {
	if o == nil {
		return nil
	}
	return o.Metrics
}
