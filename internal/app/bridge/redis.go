package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/pkg/logx"
)

// Redis implements Bridge over Redis pub/sub.
type Redis struct {
	client *redis.Client

	cancel context.CancelFunc
	ctx    context.Context

	mu      sync.Mutex
	pubsubs []*redis.PubSub
	wg      sync.WaitGroup
}

// NewRedis connects to the Redis server at addr and returns the Bridge adapter.
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Redis{
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Publish sends the payload on the channel.
func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a handler for the channel and starts a consumer goroutine.
func (b *Redis) Subscribe(channel string, handler Handler) error {
	pubsub := b.client.Subscribe(b.ctx, channel)

	// Receive forces the SUBSCRIBE round trip so a broken channel fails here,
	// not silently inside the consumer goroutine.
	if _, err := pubsub.Receive(b.ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b.mu.Lock()
	b.pubsubs = append(b.pubsubs, pubsub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				handler([]byte(msg.Payload))

			case <-b.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Close stops the consumer goroutines and closes the client.
func (b *Redis) Close() error {
	b.cancel()

	b.mu.Lock()
	for _, pubsub := range b.pubsubs {
		if err := pubsub.Close(); err != nil {
			logx.Warn("Failed to close Redis bridge subscription", "error", err)
		}
	}
	b.pubsubs = nil
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}
