package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"chatgate/internal/pkg/logx"
)

// NATS implements Bridge over NATS core publish/subscribe.
type NATS struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATS connects to the NATS server at url and returns the Bridge adapter.
func NewNATS(url, name string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logx.Warn("NATS bridge disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logx.Info("NATS bridge reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATS{conn: conn}, nil
}

// Publish sends the payload on the channel as a NATS subject.
func (b *NATS) Publish(_ context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a handler for the channel.
func (b *NATS) Subscribe(channel string, handler Handler) error {
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return nil
}

// Close drains the subscriptions and closes the connection.
func (b *NATS) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			logx.Warn("Failed to unsubscribe NATS bridge channel", "error", err)
		}
	}
	b.subs = nil
	b.mu.Unlock()

	b.conn.Close()
	return nil
}
