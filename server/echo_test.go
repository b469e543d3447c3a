// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package server_test

import (
	"strings"
	"testing"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/internal/testutil"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
	"github.com/creachadair/dbuschan/server"
)

func TestEchoUnanswerable(t *testing.T) {
	conn := testutil.NewFakeConn()
	m := metrics.New()
	var logs []string
	dbuschan.New(conn, &dbuschan.Options{
		NewConsumer: server.EchoWith(&server.EchoOptions{
			Logger:  func(text string) { logs = append(logs, text) },
			Metrics: m,
		}),
	})

	// A call without a serial cannot be answered.
	conn.Deliver(testutil.MustMethodCall(t, "Echo", "lost"))
	if s := conn.Submitted(); len(s) != 0 {
		t.Errorf("Submitted: got %v, want none", s)
	}
	counters := make(map[string]int64)
	m.Snapshot(counters, make(map[string]int64))
	if got := counters["dbus.echo_errors"]; got != 1 {
		t.Errorf("Echo errors: got %d, want 1", got)
	}
	if len(logs) != 1 || !strings.Contains(logs[0], "Cannot answer") {
		t.Errorf("Logs: got %q, want one unanswerable call", logs)
	}

	// A call with a serial is answered.
	call := testutil.MustMethodCall(t, "Echo", "found")
	call.SetSerial(9)
	conn.Deliver(call)
	s := conn.Submitted()
	if len(s) != 1 {
		t.Fatalf("Submitted: got %d messages, want 1", len(s))
	}
	if s[0].Header.Type != message.MethodReturn || s[0].Header.ReplySerial != 9 {
		t.Errorf("Reply: got %v, want a return for serial 9", s[0])
	}
}
