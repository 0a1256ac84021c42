package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-engine/internal/common/clock"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/metrics"
)

// BroadcasterConfig bounds the wait for a channel to reach subscribed state
// before a send is attempted.
type BroadcasterConfig struct {
	SubscribeTimeout time.Duration
}

// Broadcaster implements the send-with-subscription-guarantee protocol on
// top of the registry. Transport failures surface as boolean results, never
// as errors across this boundary.
type Broadcaster struct {
	registry *Registry
	clk      clock.Clock
	cfg      BroadcasterConfig
	logger   logger.Logger
}

func NewBroadcaster(registry *Registry, clk clock.Clock, cfg BroadcasterConfig, log logger.Logger) *Broadcaster {
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 5 * time.Second
	}
	return &Broadcaster{
		registry: registry,
		clk:      clk,
		cfg:      cfg,
		logger:   log.With(map[string]interface{}{"component": "broadcaster"}),
	}
}

// Broadcast publishes an event, first guaranteeing the channel is in a
// subscribed state. Broadcasting to a not-yet-ready channel silently drops
// messages on naive transports, so the ready wait is explicit and bounded.
func (b *Broadcaster) Broadcast(ctx context.Context, channelName string, eventType EventType, payload interface{}) bool {
	if !eventType.Valid() {
		b.logger.Error("broadcast rejected: unknown event type", map[string]interface{}{
			"channel":   channelName,
			"eventType": string(eventType),
		})
		metrics.BroadcastsTotal.WithLabelValues(string(eventType), "invalid").Inc()
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("broadcast rejected: payload not serializable", map[string]interface{}{
			"channel":   channelName,
			"eventType": string(eventType),
			"error":     err.Error(),
		})
		metrics.BroadcastsTotal.WithLabelValues(string(eventType), "invalid").Inc()
		return false
	}

	ch, err := b.registry.GetOrCreate(channelName)
	if err != nil {
		b.logger.Error("broadcast failed: channel unavailable", map[string]interface{}{
			"channel": channelName,
			"error":   err.Error(),
		})
		metrics.BroadcastsTotal.WithLabelValues(string(eventType), "failed").Inc()
		return false
	}

	waitStart := b.clk.Now()
	if !b.waitReady(ctx, ch) {
		b.logger.Warn("broadcast dropped: channel never became ready", map[string]interface{}{
			"channel":   channelName,
			"eventType": string(eventType),
			"timeout":   b.cfg.SubscribeTimeout.String(),
		})
		metrics.BroadcastsTotal.WithLabelValues(string(eventType), "timeout").Inc()
		return false
	}
	metrics.BroadcastReadyWait.WithLabelValues(string(eventType)).
		Observe(b.clk.Now().Sub(waitStart).Seconds())

	env := &Envelope{
		ID:        uuid.New().String(),
		Channel:   channelName,
		Type:      eventType,
		Payload:   data,
		Timestamp: b.clk.Now(),
	}

	if err := ch.Send(ctx, env); err != nil {
		b.logger.Warn("broadcast send failed", map[string]interface{}{
			"channel":   channelName,
			"eventType": string(eventType),
			"error":     err.Error(),
		})
		metrics.BroadcastsTotal.WithLabelValues(string(eventType), "send_failed").Inc()
		return false
	}

	metrics.BroadcastsTotal.WithLabelValues(string(eventType), "sent").Inc()
	return true
}

// waitReady kicks off the subscription if needed and waits for readiness,
// bounded by the configured timeout and the caller's context.
func (b *Broadcaster) waitReady(ctx context.Context, ch *Channel) bool {
	select {
	case <-ch.Ready():
		return true
	default:
	}

	go func() {
		if err := ch.EnsureSubscribed(ctx); err != nil {
			b.logger.Warn("channel subscription failed", map[string]interface{}{
				"channel": ch.Name,
				"error":   err.Error(),
			})
		}
	}()

	select {
	case <-ch.Ready():
		return true
	case <-b.clk.After(b.cfg.SubscribeTimeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// Subscribe registers a handler for one event type on a channel and ensures
// the channel is actively subscribed. The returned unsubscribe function is
// idempotent: a second call is a no-op and never double-decrements the
// registry's subscriber count.
func (b *Broadcaster) Subscribe(ctx context.Context, channelName string, eventType EventType, handler Handler) (func(), error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler must not be nil")
	}

	ch, err := b.registry.GetOrCreate(channelName)
	if err != nil {
		return nil, err
	}
	if err := ch.EnsureSubscribed(ctx); err != nil {
		return nil, err
	}

	id := ch.addHandler(eventType, handler)
	b.registry.AddSubscriber(channelName)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			ch.removeHandler(eventType, id)
			b.registry.RemoveSubscriber(channelName)
		})
	}
	return unsubscribe, nil
}
