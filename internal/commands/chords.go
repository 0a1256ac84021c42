package commands

import (
	"context"
	"strings"
	"sync"
	"time"

	"support-engine/internal/common/clock"
)

// ChordConfig controls the inactivity window for multi-key sequences. This
// is a shorter timeout domain than chat typing and shares no state with it.
type ChordConfig struct {
	Timeout time.Duration
}

// ChordResolver buffers key chords and resolves completed sequences into
// commands on the bus. The buffer clears after the inactivity window so a
// half-typed sequence never lingers.
type ChordResolver struct {
	clk clock.Clock
	cfg ChordConfig
	bus *Bus

	mu       sync.Mutex
	bindings map[string]string // joined sequence -> command name
	buffer   []string
	lastKey  time.Time
}

func NewChordResolver(clk clock.Clock, cfg ChordConfig, bus *Bus) *ChordResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	return &ChordResolver{
		clk:      clk,
		cfg:      cfg,
		bus:      bus,
		bindings: make(map[string]string),
	}
}

// Bind maps a key sequence (e.g. "g", "i") to a command name.
func (c *ChordResolver) Bind(sequence []string, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[strings.Join(sequence, " ")] = command
}

// Key feeds one keystroke. A completed sequence dispatches its command and
// clears the buffer; a sequence prefix waits for more keys; anything else
// restarts the buffer at this key.
func (c *ChordResolver) Key(key string) bool {
	now := c.clk.Now()

	c.mu.Lock()
	if len(c.buffer) > 0 && now.Sub(c.lastKey) > c.cfg.Timeout {
		c.buffer = c.buffer[:0]
	}
	c.lastKey = now
	c.buffer = append(c.buffer, key)
	joined := strings.Join(c.buffer, " ")

	if command, ok := c.bindings[joined]; ok {
		c.buffer = c.buffer[:0]
		c.mu.Unlock()
		return c.bus.Dispatch(Command{Name: command})
	}

	if c.isPrefix(joined) {
		c.mu.Unlock()
		return false
	}

	// Not part of any sequence; restart at the current key, which may be
	// a complete single-key binding itself.
	if command, ok := c.bindings[key]; ok {
		c.buffer = c.buffer[:0]
		c.mu.Unlock()
		return c.bus.Dispatch(Command{Name: command})
	}
	c.buffer = []string{key}
	if !c.isPrefix(key) {
		c.buffer = c.buffer[:0]
	}
	c.mu.Unlock()
	return false
}

// isPrefix reports whether any binding starts with the joined buffer.
// Caller holds the lock.
func (c *ChordResolver) isPrefix(joined string) bool {
	for seq := range c.bindings {
		if strings.HasPrefix(seq, joined+" ") {
			return true
		}
	}
	return false
}

// Pending returns the current buffered sequence, for display.
func (c *ChordResolver) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// ExpireStale clears the buffer when the inactivity window has elapsed.
func (c *ChordResolver) ExpireStale() {
	now := c.clk.Now()
	c.mu.Lock()
	if len(c.buffer) > 0 && now.Sub(c.lastKey) > c.cfg.Timeout {
		c.buffer = c.buffer[:0]
	}
	c.mu.Unlock()
}

// StartExpiry clears stale buffers in the background until the context ends.
func (c *ChordResolver) StartExpiry(ctx context.Context) {
	interval := c.cfg.Timeout / 2
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := c.clk.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				c.ExpireStale()
			case <-ctx.Done():
				return
			}
		}
	}()
}
