// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan

import "expvar"

var (
	channelMetrics = new(expvar.Map)

	channelsActive    = new(expvar.Int)
	serialsAllocated  = new(expvar.Int)
	messagesWritten   = new(expvar.Int)
	messagesDelivered = new(expvar.Int)
	consumersSwapped  = new(expvar.Int)
)

func init() {
	channelMetrics.Set("channels_active", channelsActive)
	channelMetrics.Set("serials_allocated", serialsAllocated)
	channelMetrics.Set("messages_written", messagesWritten)
	channelMetrics.Set("messages_delivered", messagesDelivered)
	channelMetrics.Set("consumers_swapped", consumersSwapped)
}

// ChannelMetrics returns a map of exported channel metrics for use with the
// expvar package. This map is shared among all channels created by New.
//
// The caller is responsible for publishing the metrics to the exporter via
// expvar.Publish or similar.
func ChannelMetrics() *expvar.Map { return channelMetrics }
