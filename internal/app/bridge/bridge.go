/*
Package bridge provides the cross-process broadcast channel used to fan chat
events out to sibling gateway instances.

The Bridge interface is deliberately narrow (publish/subscribe on named
channels) so the backing broker can be swapped without touching the dispatcher.
A single-instance deployment uses the Noop implementation; multi-instance
deployments pick the NATS or Redis adapter via configuration.
*/
package bridge

import "context"

// ChannelNewMessage is the channel carrying message-delivery events between instances.
const ChannelNewMessage = "new-message"

// Handler consumes one raw payload received on a subscribed channel.
type Handler func(payload []byte)

// Bridge is the cross-process publish/subscribe contract.
type Bridge interface {
	// Publish sends the JSON-encoded payload on the named channel. Fire-and-forget:
	// callers log failures and continue, local delivery never depends on it.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers a handler for the named channel. The handler is invoked
	// for every payload published by any instance, including this one.
	Subscribe(channel string, handler Handler) error

	// Close tears down the broker connection and all subscriptions.
	Close() error
}

// Noop is the single-instance Bridge: publishes vanish, subscriptions never fire.
type Noop struct{}

// NewNoop returns a Bridge that does nothing.
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) Publish(context.Context, string, []byte) error { return nil }

func (*Noop) Subscribe(string, Handler) error { return nil }

func (*Noop) Close() error { return nil }
