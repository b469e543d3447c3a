// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/future"
	"github.com/creachadair/dbuschan/internal/testutil"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
	"github.com/google/go-cmp/cmp"
)

func TestWriteAssignsSerial(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	first := testutil.MustMethodCall(t, "First", nil)
	second := testutil.MustMethodCall(t, "Second", nil)
	ch.Write(first)
	ch.Write(second)

	if first.Serial() == 0 || second.Serial() == 0 {
		t.Fatalf("Serials not assigned: %d, %d", first.Serial(), second.Serial())
	}
	if first.Serial() == second.Serial() {
		t.Errorf("Duplicate serial %d", first.Serial())
	}
	if diff := cmp.Diff([]*message.Message{first, second}, conn.Submitted()); diff != "" {
		t.Errorf("Submitted (-want, +got):\n%s", diff)
	}
}

func TestWriteKeepsSerial(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	msg := testutil.MustMethodCall(t, "Preset", nil)
	msg.SetSerial(42)
	ch.Write(msg)
	if got := msg.Serial(); got != 42 {
		t.Errorf("Serial: got %d, want 42", got)
	}

	// The preset serial does not consume an allocation.
	if got := ch.AllocateSerial(); got != 1 {
		t.Errorf("AllocateSerial: got %d, want 1", got)
	}
}

func TestAllocateSerialConcurrent(t *testing.T) {
	ch := dbuschan.New(testutil.NewFakeConn(), nil)
	if a, b := ch.AllocateSerial(), ch.AllocateSerial(); a != 1 || b != 2 {
		t.Fatalf("First allocations: got %d, %d; want 1, 2", a, b)
	}

	const numWorkers = 10
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Go(func() {
			for range perWorker {
				s := ch.AllocateSerial()
				mu.Lock()
				if s == 0 {
					t.Error("AllocateSerial returned 0")
				} else if seen[s] {
					t.Errorf("Duplicate serial %d", s)
				}
				seen[s] = true
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if len(seen) != numWorkers*perWorker {
		t.Errorf("Got %d distinct serials, want %d", len(seen), numWorkers*perWorker)
	}
	// The burst covers exactly the values after the first two.
	for s := uint32(3); s <= numWorkers*perWorker+2; s++ {
		if !seen[s] {
			t.Errorf("Serial %d was not allocated", s)
		}
	}
}

func TestConsumerSwapConcurrent(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	const numMessages = 1000
	var counts [2]atomic.Int64
	consumers := [2]dbuschan.MessageConsumer{
		dbuschan.ConsumerFunc(func(*message.Message) { counts[0].Add(1) }),
		dbuschan.ConsumerFunc(func(*message.Message) { counts[1].Add(1) }),
	}
	ch.SetMessageConsumer(consumers[0])

	msg := testutil.MustMethodCall(t, "Tick", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range numMessages {
			conn.Deliver(msg)
		}
	}()
swap:
	for i := 0; ; i++ {
		select {
		case <-done:
			break swap
		default:
			ch.SetMessageConsumer(consumers[i%2])
		}
	}

	// Every message reached exactly one consumer.
	if total := counts[0].Load() + counts[1].Load(); total != numMessages {
		t.Errorf("Delivered %d messages, want %d", total, numMessages)
	}
}

func TestConsumerSwap(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	// With no consumer installed, inbound messages are dropped.
	conn.Deliver(testutil.MustMethodCall(t, "Dropped", nil))

	var gotA, gotB []string
	ch.SetMessageConsumer(dbuschan.ConsumerFunc(func(m *message.Message) {
		gotA = append(gotA, m.Header.Member)
	}))
	conn.Deliver(testutil.MustMethodCall(t, "One", nil))

	ch.SetMessageConsumer(dbuschan.ConsumerFunc(func(m *message.Message) {
		gotB = append(gotB, m.Header.Member)
	}))
	conn.Deliver(testutil.MustMethodCall(t, "Two", nil))
	conn.Deliver(testutil.MustMethodCall(t, "Three", nil))

	if diff := cmp.Diff([]string{"One"}, gotA); diff != "" {
		t.Errorf("Consumer A (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Two", "Three"}, gotB); diff != "" {
		t.Errorf("Consumer B (-want, +got):\n%s", diff)
	}
}

func TestNewConsumer(t *testing.T) {
	conn := testutil.NewFakeConn()
	var got []*message.Message
	var owner *dbuschan.Channel
	ch := dbuschan.New(conn, &dbuschan.Options{
		NewConsumer: func(c *dbuschan.Channel) dbuschan.MessageConsumer {
			owner = c
			return dbuschan.ConsumerFunc(func(m *message.Message) { got = append(got, m) })
		},
	})
	if owner != ch {
		t.Errorf("NewConsumer got channel %p, want %p", owner, ch)
	}
	msg := testutil.MustMethodCall(t, "Early", nil)
	conn.Deliver(msg)
	if len(got) != 1 || got[0] != msg {
		t.Errorf("Delivered: got %v, want [%v]", got, msg)
	}
}

func TestCloseCompletion(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	done := ch.CloseCompletion()
	if done.Ready() {
		t.Fatal("Close completion is ready before close")
	}
	if s := ch.State(); s != dbuschan.Open {
		t.Errorf("State: got %v, want %v", s, dbuschan.Open)
	}

	ch.Close()
	if !conn.CloseCalled() {
		t.Error("Close did not reach the transport")
	}
	if s := ch.State(); s != dbuschan.Closing {
		t.Errorf("State: got %v, want %v", s, dbuschan.Closing)
	}
	if done.Ready() {
		t.Fatal("Close completion is ready before the transport finished")
	}

	var calls int
	done.Then(func(struct{}, error) { calls++ })
	conn.Finish(nil)
	conn.Finish(errors.New("ignored"))

	if _, err := done.Wait(context.Background()); err != nil {
		t.Errorf("Close completion: unexpected error %v", err)
	}
	if calls != 1 {
		t.Errorf("Continuation ran %d times, want 1", calls)
	}
	if s := ch.State(); s != dbuschan.Closed {
		t.Errorf("State: got %v, want %v", s, dbuschan.Closed)
	}
	if err := ch.Err(); err != nil {
		t.Errorf("Err: got %v, want nil", err)
	}

	// A completion requested after the fact is already complete.
	if late := ch.CloseCompletion(); !late.Ready() {
		t.Error("Late close completion is not ready")
	}
}

func TestCloseCompletionListeners(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)
	base := conn.Listeners()

	var views []*future.Future[struct{}]
	for range 10 {
		views = append(views, ch.CloseCompletion())
	}
	if got := conn.Listeners(); got != base {
		t.Errorf("Transport listeners: got %d, want %d", got, base)
	}

	cause := errors.New("teardown failed")
	conn.Finish(cause)
	for range 10 {
		views = append(views, ch.CloseCompletion())
	}
	if got := conn.Listeners(); got != base {
		t.Errorf("Transport listeners after close: got %d, want %d", got, base)
	}
	for i, f := range views {
		if _, err := f.Result(); err != cause {
			t.Errorf("View %d: got %v, want identical %v", i, err, cause)
		}
	}
}

func TestCloseCompletionCause(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	cause := errors.New("connection reset by peer")
	a := ch.CloseCompletion()
	conn.Finish(cause)
	b := ch.CloseCompletion()

	for _, f := range []*future.Future[struct{}]{a, b} {
		if _, err := f.Result(); err != cause {
			t.Errorf("Close completion: got %v, want identical %v", err, cause)
		}
	}
	if err := ch.Err(); err != cause {
		t.Errorf("Err: got %v, want identical %v", err, cause)
	}
}

func TestDisconnect(t *testing.T) {
	conn := testutil.NewFakeConn()
	ch := dbuschan.New(conn, nil)

	ch.Disconnect()
	if !conn.Disconnected() {
		t.Error("Disconnect did not reach the transport")
	}
	if s := ch.State(); s != dbuschan.HalfClosing {
		t.Errorf("State: got %v, want %v", s, dbuschan.HalfClosing)
	}

	// Close after Disconnect escalates; Disconnect after Close does not regress.
	ch.Close()
	ch.Disconnect()
	if s := ch.State(); s != dbuschan.Closing {
		t.Errorf("State: got %v, want %v", s, dbuschan.Closing)
	}
}

func TestWriteAfterClose(t *testing.T) {
	conn := testutil.NewFakeConn()
	m := metrics.New()
	ch := dbuschan.New(conn, &dbuschan.Options{Metrics: m})

	ch.Close()
	conn.Finish(nil)

	msg := testutil.MustMethodCall(t, "Late", nil)
	ch.Write(msg)
	if msg.Serial() == 0 {
		t.Error("Late write was not assigned a serial")
	}
	if s := conn.Submitted(); len(s) != 1 || s[0] != msg {
		t.Errorf("Submitted: got %v, want [%v]", s, msg)
	}

	counters := make(map[string]int64)
	m.Snapshot(counters, make(map[string]int64))
	if got := counters["dbus.writes_after_close"]; got != 1 {
		t.Errorf("Writes after close: got %d, want 1", got)
	}
}

func TestNilArguments(t *testing.T) {
	ch := dbuschan.New(testutil.NewFakeConn(), nil)
	tests := []struct {
		name string
		fn   func()
	}{
		{"New", func() { dbuschan.New(nil, nil) }},
		{"Write", func() { ch.Write(nil) }},
		{"SetMessageConsumer", func() { ch.SetMessageConsumer(nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s(nil) did not panic", tc.name)
				}
			}()
			tc.fn()
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state dbuschan.State
		want  string
	}{
		{dbuschan.Open, "OPEN"},
		{dbuschan.HalfClosing, "HALF-CLOSING"},
		{dbuschan.Closing, "CLOSING"},
		{dbuschan.Closed, "CLOSED"},
		{dbuschan.State(99), "INVALID"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String(): got %q, want %q", tc.state, got, tc.want)
		}
	}
}
