// Copyright (C) 2019 Michael J. Fromberger. All Rights Reserved.

package server_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/call"
	"github.com/creachadair/dbuschan/channel"
	"github.com/creachadair/dbuschan/internal/testutil"
	"github.com/creachadair/dbuschan/server"
	"github.com/creachadair/dbuschan/transport"
	"github.com/creachadair/mds/mnet"
	"github.com/fortytw2/leaktest"
)

func dialChannel(n *mnet.Network, addr string) (*dbuschan.Channel, error) {
	conn, err := n.DialContext(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	return dbuschan.New(transport.New(channel.Line(conn, conn), nil), nil), nil
}

func TestLoop(t *testing.T) {
	defer leaktest.Check(t)()

	n := mnet.New(t.Name() + " network")
	lst := n.MustListen("tcp", "test:1234")
	addr := lst.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- server.Loop(ctx, lst, server.Echo, &server.LoopOptions{
			Framing:  channel.Line,
			MaxConns: 3,
		})
	}()

	// Start a bunch of clients, each of which will dial the server and make
	// some calls at random intervals to tickle the race detector.
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Go(func() {
			ch, err := dialChannel(n, addr)
			if err != nil {
				t.Errorf("[client %d] Dialing %q: %v", i, addr, err)
				return
			}
			cli := call.New(ch, nil)
			defer cli.Close()

			for j := range 5 {
				time.Sleep(time.Duration(rand.IntN(10)) * time.Millisecond)
				want := fmt.Sprintf("client %d call %d", i, j)
				got, err := call.CallResult[string](ctx, cli, testutil.MustMethodCall(t, "Echo", want))
				if err != nil {
					t.Errorf("[client %d]: call %d: unexpected error: %v", i, j+1, err)
				} else if got != want {
					t.Errorf("[client %d]: call %d: got %q, want %q", i, j+1, got, want)
				}
			}
		})
	}
	wg.Wait()

	// The loop exits cleanly once its context ends.
	cancel()
	if err := <-loopErr; err != nil {
		t.Errorf("Loop: unexpected failure: %v", err)
	}
}

func TestLoopClosesActive(t *testing.T) {
	defer leaktest.Check(t)()

	n := mnet.New(t.Name() + " network")
	lst := n.MustListen("tcp", "test:1234")

	ctx, cancel := context.WithCancel(context.Background())
	loopErr := make(chan error, 1)
	go func() { loopErr <- server.Loop(ctx, lst, server.Echo, &server.LoopOptions{Framing: channel.Line}) }()

	// Make one call so that the connection is known to be served.
	ch, err := dialChannel(n, lst.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cli := call.New(ch, nil)
	if _, err := cli.Call(ctx, testutil.MustMethodCall(t, "Echo", "ping")); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	// Ending the context closes the served channel, and the client sees the
	// end of its input.
	cancel()
	if err := <-loopErr; err != nil {
		t.Errorf("Loop: unexpected failure: %v", err)
	}
	cli.Close()
}

func TestLoopNilConsumer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Loop with nil consumer did not panic")
		}
	}()
	server.Loop(context.Background(), nil, nil, nil)
}
