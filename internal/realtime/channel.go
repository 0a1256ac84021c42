package realtime

import (
	"context"
	"sync"
	"time"
)

// Handler receives envelopes for one event type on one channel.
type Handler func(*Envelope)

type handlerEntry struct {
	id int
	fn Handler
}

// Channel is the registry's view of one live transport channel: the handle,
// its handler table, and its lifecycle bookkeeping.
type Channel struct {
	Name string

	tc TransportChannel

	mu          sync.Mutex
	handlers    map[EventType][]handlerEntry
	nextID      int
	subscribers int
	lastUsed    time.Time
	dispatching bool
}

func newChannel(name string, tc TransportChannel, now time.Time) *Channel {
	return &Channel{
		Name:     name,
		tc:       tc,
		handlers: make(map[EventType][]handlerEntry),
		lastUsed: now,
	}
}

// EnsureSubscribed establishes the transport subscription and starts the
// dispatch loop. Safe to call repeatedly.
func (c *Channel) EnsureSubscribed(ctx context.Context) error {
	if err := c.tc.Subscribe(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return nil
	}
	c.dispatching = true
	c.mu.Unlock()

	go func() {
		for env := range c.tc.Messages() {
			c.dispatch(env)
		}
	}()
	return nil
}

// dispatch invokes handlers for the envelope's event type in registration
// order. The handler snapshot is taken under the lock but handlers run
// outside it, so a handler may subscribe or unsubscribe re-entrantly.
func (c *Channel) dispatch(env *Envelope) {
	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[env.Type]))
	copy(entries, c.handlers[env.Type])
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(env)
	}
}

func (c *Channel) addHandler(eventType EventType, fn Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[eventType] = append(c.handlers[eventType], handlerEntry{id: id, fn: fn})
	return id
}

func (c *Channel) removeHandler(eventType EventType, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[eventType]
	for i, e := range entries {
		if e.id == id {
			c.handlers[eventType] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(c.handlers[eventType]) == 0 {
		delete(c.handlers, eventType)
	}
}

// Ready is closed once the transport subscription is confirmed.
func (c *Channel) Ready() <-chan struct{} {
	return c.tc.Ready()
}

// Send publishes an envelope on the underlying transport.
func (c *Channel) Send(ctx context.Context, env *Envelope) error {
	return c.tc.Send(ctx, env)
}

func (c *Channel) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *Channel) addSubscriber(now time.Time) {
	c.mu.Lock()
	c.subscribers++
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *Channel) removeSubscriber(now time.Time) {
	c.mu.Lock()
	if c.subscribers > 0 {
		c.subscribers--
	}
	c.lastUsed = now
	c.mu.Unlock()
}

// Subscribers returns the current reference count.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribers
}

func (c *Channel) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}
