// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package chanutil exports helper functions for working with channels and
// framing defined by the github.com/creachadair/dbuschan/channel package.
package chanutil

import (
	"sort"
	"strings"

	"github.com/creachadair/dbuschan/channel"
)

// Framing returns a channel.Framing described by the specified name, or nil if
// the name is unknown. The framing types currently understood are:
//
//	header:t -- corresponds to channel.Header(t)
//	header   -- corresponds to channel.Header("")
//	line     -- corresponds to channel.Line
//	varint   -- corresponds to channel.Varint
func Framing(name string) channel.Framing {
	if t, ok := strings.CutPrefix(name, "header:"); ok {
		return channel.Header(t)
	}
	return framings[name]
}

// Names returns the names of the framings understood by Framing, in order.
// The parameterized header framing is listed as "header:<type>".
func Names() []string {
	names := []string{"header:<type>"}
	for name := range framings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var framings = map[string]channel.Framing{
	"header": channel.Header(""),
	"line":   channel.Line,
	"varint": channel.Varint,
}
