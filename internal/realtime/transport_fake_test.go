package realtime

import (
	"context"
	"fmt"
	"sync"
)

// memTransport is an in-process Transport: every channel opened under the
// same name shares one topic, and sends fan out to the topic's inbox.
type memTransport struct {
	mu     sync.Mutex
	topics map[string][]*memChannel

	failSubscribe bool
	failSend      bool
}

func newMemTransport() *memTransport {
	return &memTransport{topics: make(map[string][]*memChannel)}
}

func (t *memTransport) Open(name string) TransportChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &memChannel{
		parent: t,
		name:   name,
		ready:  make(chan struct{}),
		msgs:   make(chan *Envelope, 64),
	}
	t.topics[name] = append(t.topics[name], c)
	return c
}

func (t *memTransport) deliver(name string, env *Envelope) {
	t.mu.Lock()
	subs := append([]*memChannel(nil), t.topics[name]...)
	t.mu.Unlock()
	for _, c := range subs {
		c.mu.Lock()
		open := c.subscribed && !c.closed
		c.mu.Unlock()
		if open {
			c.msgs <- env
		}
	}
}

type memChannel struct {
	parent *memTransport
	name   string

	mu         sync.Mutex
	subscribed bool
	closed     bool

	ready chan struct{}
	msgs  chan *Envelope
}

func (c *memChannel) Send(ctx context.Context, env *Envelope) error {
	if c.parent.failSend {
		return fmt.Errorf("send failed")
	}
	c.parent.deliver(c.name, env)
	return nil
}

func (c *memChannel) Subscribe(ctx context.Context) error {
	if c.parent.failSubscribe {
		return fmt.Errorf("subscribe failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channel %s is closed", c.name)
	}
	if !c.subscribed {
		c.subscribed = true
		close(c.ready)
	}
	return nil
}

func (c *memChannel) Ready() <-chan struct{}     { return c.ready }
func (c *memChannel) Messages() <-chan *Envelope { return c.msgs }

func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.msgs)
	return nil
}
