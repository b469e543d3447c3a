// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package testutil_test

import (
	"errors"
	"testing"

	"github.com/creachadair/dbuschan/internal/testutil"
	"github.com/creachadair/dbuschan/message"
)

func TestFakeConn(t *testing.T) {
	c := testutil.NewFakeConn()

	var got []*message.Message
	c.Start(func(m *message.Message) { got = append(got, m) })

	msg := testutil.MustMethodCall(t, "Ping", nil)
	c.Submit(msg)
	if s := c.Submitted(); len(s) != 1 || s[0] != msg {
		t.Errorf("Submitted: got %v, want [%v]", s, msg)
	}

	c.Deliver(msg)
	if len(got) != 1 || got[0] != msg {
		t.Errorf("Delivered: got %v, want [%v]", got, msg)
	}

	c.Disconnect()
	c.Close()
	if !c.Disconnected() || !c.CloseCalled() {
		t.Errorf("Disconnected=%v CloseCalled=%v, want both true", c.Disconnected(), c.CloseCalled())
	}

	cause := errors.New("boom")
	if !c.Finish(cause) {
		t.Error("First Finish reported false")
	}
	if c.Finish(nil) {
		t.Error("Second Finish reported true")
	}
	if _, err := c.CloseFuture().Get(); err != cause {
		t.Errorf("CloseFuture: got %v, want %v", err, cause)
	}
}
