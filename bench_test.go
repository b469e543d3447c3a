// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan_test

import (
	"context"
	"testing"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/call"
	"github.com/creachadair/dbuschan/internal/testutil"
	"github.com/creachadair/dbuschan/server"
)

func BenchmarkRoundTrip(b *testing.B) {
	// Benchmark the round-trip call cycle for an echo peer, as a proxy for the
	// overhead of serial assignment, transport and reply correlation.
	ch, _ := server.Local(&server.LocalOptions{
		PeerOptions: &dbuschan.Options{NewConsumer: server.Echo},
	})
	cli := call.New(ch, nil)
	defer cli.Close()
	ctx := context.Background()

	for b.Loop() {
		if _, err := cli.Call(ctx, testutil.MustMethodCall(b, "Void", nil)); err != nil {
			b.Fatalf("Call Void failed: %v", err)
		}
	}
}

func BenchmarkAllocateSerial(b *testing.B) {
	ch := dbuschan.New(testutil.NewFakeConn(), nil)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ch.AllocateSerial()
		}
	})
}
