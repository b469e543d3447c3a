// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the values of an *M as Prometheus metrics. Counters are
// exported as counter values and max value trackers as gauges with a "_max"
// suffix. Since the names in an *M are not known in advance, a Collector is
// an unchecked collector: its Describe method sends no descriptors.
type Collector struct {
	namespace string
	m         *M
}

// NewCollector returns a Collector exporting the metrics of m, with each
// metric name prefixed by namespace. Characters in names that are not valid
// in a Prometheus metric name are replaced by underscores, so that
// "dbus.bytes_read" becomes "<namespace>_dbus_bytes_read".
func NewCollector(namespace string, m *M) *Collector {
	return &Collector{namespace: namespace, m: m}
}

// Describe implements part of the prometheus.Collector interface.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters := make(map[string]int64)
	maxValues := make(map[string]int64)
	c.m.Snapshot(counters, maxValues)

	for name, val := range counters {
		desc := prometheus.NewDesc(c.metricName(name), "Counter "+name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(val))
	}
	for name, val := range maxValues {
		desc := prometheus.NewDesc(c.metricName(name)+"_max", "Maximum value of "+name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(val))
	}
}

func (c *Collector) metricName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, name)
	return prometheus.BuildFQName(c.namespace, "", clean)
}
