// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package metrics_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/creachadair/dbuschan/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollector(t *testing.T) {
	var m *metrics.M
	m.Count("x", 1) // must not panic
	m.SetMaxValue("y", 2)
	if names := m.Names(); names != nil {
		t.Errorf("Names on nil: got %q, want nil", names)
	}
}

func TestCounters(t *testing.T) {
	m := metrics.New()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				m.Count("dbus.messages_written", 1)
				m.SetMaxValue("dbus.queue_depth", int64(i))
			}
		}()
	}
	wg.Wait()
	m.SetMaxValue("dbus.negative", -5)

	counters := make(map[string]int64)
	maxValues := make(map[string]int64)
	m.Snapshot(counters, maxValues)

	if diff := cmp.Diff(map[string]int64{"dbus.messages_written": 1000}, counters); diff != "" {
		t.Errorf("Counters (-want, +got):\n%s", diff)
	}
	wantMax := map[string]int64{"dbus.queue_depth": 99, "dbus.negative": -5}
	if diff := cmp.Diff(wantMax, maxValues); diff != "" {
		t.Errorf("Max values (-want, +got):\n%s", diff)
	}
	wantNames := []string{"dbus.messages_written", "dbus.negative", "dbus.queue_depth"}
	if diff := cmp.Diff(wantNames, m.Names()); diff != "" {
		t.Errorf("Names (-want, +got):\n%s", diff)
	}
}

func TestCollector(t *testing.T) {
	m := metrics.New()
	m.Count("dbus.bytes_read", 42)
	m.SetMaxValue("dbus.queue_depth", 3)

	c := metrics.NewCollector("dbuschan", m)
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	const want = `
# HELP dbuschan_dbus_bytes_read Counter dbus.bytes_read
# TYPE dbuschan_dbus_bytes_read counter
dbuschan_dbus_bytes_read 42
# HELP dbuschan_dbus_queue_depth_max Maximum value of dbus.queue_depth
# TYPE dbuschan_dbus_queue_depth_max gauge
dbuschan_dbus_queue_depth_max 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want)); err != nil {
		t.Errorf("GatherAndCompare: %v", err)
	}
}
