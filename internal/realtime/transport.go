package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	stderrors "support-engine/internal/common/errors"
)

// Transport is the pub/sub primitive the registry wraps. Any broker exposing
// subscribe/send per named topic is substitutable.
type Transport interface {
	Open(name string) TransportChannel
}

// TransportChannel is one named topic on the transport.
type TransportChannel interface {
	// Send publishes an envelope. Errors are transport-level failures.
	Send(ctx context.Context, env *Envelope) error
	// Subscribe establishes the subscription. Idempotent.
	Subscribe(ctx context.Context) error
	// Ready is closed once the subscription is confirmed by the broker.
	Ready() <-chan struct{}
	// Messages streams inbound envelopes. Closed on Close.
	Messages() <-chan *Envelope
	Close() error
}

// RedisTransport implements Transport over Redis pub/sub.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Open(name string) TransportChannel {
	return &redisChannel{
		client: t.client,
		name:   name,
		ready:  make(chan struct{}),
		msgs:   make(chan *Envelope, 64),
	}
}

type redisChannel struct {
	client *redis.Client
	name   string

	mu         sync.Mutex
	pubsub     *redis.PubSub
	subscribed bool
	closed     bool

	ready chan struct{}
	msgs  chan *Envelope
}

func (c *redisChannel) Send(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.client.Publish(ctx, c.name, data).Err(); err != nil {
		return stderrors.NewChannelSendFailedError(c.name, err)
	}
	return nil
}

func (c *redisChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return stderrors.NewTransportClosedError(c.name)
	}
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}

	// The subscription outlives the first caller's context.
	pubsub := c.client.Subscribe(context.Background(), c.name)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		c.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			return stderrors.NewChannelSubscribeTimeoutError(c.name)
		}
		return fmt.Errorf("subscribe to %s: %w", c.name, err)
	}

	c.pubsub = pubsub
	c.subscribed = true
	close(c.ready)
	c.mu.Unlock()

	go c.receiveLoop(pubsub.Channel())
	return nil
}

func (c *redisChannel) receiveLoop(in <-chan *redis.Message) {
	for msg := range in {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			continue
		}
		env.Channel = c.name
		select {
		case c.msgs <- &env:
		default:
			// subscriber isn't draining; drop rather than stall the loop
		}
	}
	close(c.msgs)
}

func (c *redisChannel) Ready() <-chan struct{} {
	return c.ready
}

func (c *redisChannel) Messages() <-chan *Envelope {
	return c.msgs
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pubsub != nil {
		return c.pubsub.Close()
	}
	close(c.msgs)
	return nil
}
