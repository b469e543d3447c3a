// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

/*
Package dbuschan implements a transport-agnostic message channel for a
D-Bus style message bus protocol.

A *Channel owns a single bidirectional transport connection. It assigns
protocol serial numbers to outbound messages, delivers inbound messages to a
replaceable MessageConsumer, and reports the shutdown of its transport as a
generic future.

# Channels

To create a channel, start with a transport. The transport package provides
one that runs over any channel.Channel, such as a framed net.Conn:

	conn, err := net.Dial("unix", "/run/example.sock")
	...
	ch := dbuschan.New(transport.New(channel.Varint(conn, conn), nil), nil)

The channel does not interpret the messages it carries, except for their
serial numbers. Write assigns a fresh serial to a message that does not have
one, and hands it to the transport without waiting for it to be sent:

	msg, err := message.NewMethodCall("org.example.Service", "/org/example/Obj",
	   "org.example.Iface", "Frob", []any{"knob", 5})
	...
	ch.Write(msg) // msg.Serial() is now non-zero

Serial numbers are unique per channel until the 32-bit space wraps around,
and are never zero. AllocateSerial returns one directly, for callers that need
to know the serial before the message is written.

# Consumers

Inbound messages are delivered, in order, to the consumer currently installed
by SetMessageConsumer. The consumer may be replaced at any time; messages
received after the call goes to the new consumer, while a message already in
flight completes with the old one:

	ch.SetMessageConsumer(dbuschan.ConsumerFunc(func(msg *message.Message) {
	   log.Printf("Received %v", msg)
	}))

The call package provides a consumer that correlates method replies with
pending calls.

# Shutdown

Disconnect requests a graceful half-close, and Close a full shutdown. Neither
blocks. CloseCompletion returns a future that completes when the transport has
fully shut down:

	ch.Close()
	if _, err := ch.CloseCompletion().Wait(ctx); err != nil {
	   log.Printf("Transport failed: %v", err)
	}

If the shutdown failed, the future is rejected with the error reported by the
transport, unchanged.
*/
package dbuschan
