package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"support-engine/internal/common/clock"
	stderrors "support-engine/internal/common/errors"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/metrics"
)

// RegistryConfig controls channel lifecycle behavior.
type RegistryConfig struct {
	SweepInterval time.Duration
	IdleTimeout   time.Duration
}

// Registry owns the lifecycle of named channels. It is the single mutable
// shared structure of the realtime layer; all channel creation, eviction,
// and reference counting goes through it.
type Registry struct {
	transport Transport
	clk       clock.Clock
	cfg       RegistryConfig
	logger    logger.Logger

	mu        sync.Mutex
	channels  map[string]*Channel
	destroyed bool

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func NewRegistry(transport Transport, clk clock.Clock, cfg RegistryConfig, log logger.Logger) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Registry{
		transport: transport,
		clk:       clk,
		cfg:       cfg,
		logger:    log.With(map[string]interface{}{"component": "channel-registry"}),
		channels:  make(map[string]*Channel),
		sweepStop: make(chan struct{}),
	}
}

// GetOrCreate returns the live channel for a name, opening a transport
// channel on first use. Never returns two different handles for one name.
func (r *Registry) GetOrCreate(name string) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return nil, stderrors.NewTransportClosedError(name)
	}

	if ch, ok := r.channels[name]; ok {
		ch.touch(r.clk.Now())
		return ch, nil
	}

	ch := newChannel(name, r.transport.Open(name), r.clk.Now())
	r.channels[name] = ch
	metrics.ChannelsActive.Set(float64(len(r.channels)))

	r.logger.Debug("channel created", map[string]interface{}{
		"channel": name,
	})
	return ch, nil
}

// AddSubscriber increments the reference count for a channel.
func (r *Registry) AddSubscriber(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	r.mu.Unlock()
	if ok {
		ch.addSubscriber(r.clk.Now())
	}
}

// RemoveSubscriber decrements the reference count; the count never goes
// below zero.
func (r *Registry) RemoveSubscriber(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	r.mu.Unlock()
	if ok {
		ch.removeSubscriber(r.clk.Now())
	}
}

// Remove tears down a channel regardless of subscriber count. Transport
// teardown errors are logged and swallowed; cleanup must not crash callers.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	if ok {
		delete(r.channels, name)
		metrics.ChannelsActive.Set(float64(len(r.channels)))
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := ch.tc.Close(); err != nil {
		r.logger.Warn("channel teardown error", map[string]interface{}{
			"channel": name,
			"error":   err.Error(),
		})
	}
	metrics.ChannelEvictions.WithLabelValues("explicit").Inc()
}

// Sweep evicts every channel with zero subscribers whose idle duration
// exceeds the configured threshold. Victims are collected under the lock but
// closed outside it, so eviction tolerates re-entrant registry calls.
func (r *Registry) Sweep() int {
	now := r.clk.Now()

	r.mu.Lock()
	var victims []*Channel
	for name, ch := range r.channels {
		if ch.Subscribers() == 0 && now.Sub(ch.idleSince()) > r.cfg.IdleTimeout {
			victims = append(victims, ch)
			delete(r.channels, name)
		}
	}
	metrics.ChannelsActive.Set(float64(len(r.channels)))
	r.mu.Unlock()

	for _, ch := range victims {
		if err := ch.tc.Close(); err != nil {
			r.logger.Warn("channel teardown error during sweep", map[string]interface{}{
				"channel": ch.Name,
				"error":   err.Error(),
			})
		}
		metrics.ChannelEvictions.WithLabelValues("idle").Inc()
	}

	if len(victims) > 0 {
		r.logger.Info("swept idle channels", map[string]interface{}{
			"evicted": len(victims),
		})
	}
	return len(victims)
}

// StartSweeper runs the periodic sweep until the context is cancelled or the
// registry is destroyed.
func (r *Registry) StartSweeper(ctx context.Context) {
	ticker := r.clk.NewTicker(r.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				r.Sweep()
			case <-ctx.Done():
				return
			case <-r.sweepStop:
				return
			}
		}
	}()
}

// Destroy tears down every tracked channel. Invoked at shutdown; guarantees
// no leaked transport handles.
func (r *Registry) Destroy() {
	r.sweepOnce.Do(func() { close(r.sweepStop) })

	r.mu.Lock()
	r.destroyed = true
	victims := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		victims = append(victims, ch)
	}
	r.channels = make(map[string]*Channel)
	metrics.ChannelsActive.Set(0)
	r.mu.Unlock()

	for _, ch := range victims {
		if err := ch.tc.Close(); err != nil {
			r.logger.Warn("channel teardown error during destroy", map[string]interface{}{
				"channel": ch.Name,
				"error":   err.Error(),
			})
		}
		metrics.ChannelEvictions.WithLabelValues("destroy").Inc()
	}

	r.logger.Info("registry destroyed", map[string]interface{}{
		"channels": len(victims),
	})
}

// Len returns the number of live channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
