// Package commands provides a typed command bus for keyboard-shortcut
// dispatch, replacing ambient global events with explicit registration.
package commands

import (
	"sync"

	"support-engine/internal/common/logger"
)

// Command is a named action with optional arguments.
type Command struct {
	Name string
	Args map[string]interface{}
}

// HandlerFunc handles one dispatched command.
type HandlerFunc func(Command)

type busEntry struct {
	id int
	fn HandlerFunc
}

// Bus routes commands to registered handlers. The dispatcher knows nothing
// about the handlers behind a command name, preserving the decoupling of the
// shortcut layer from concrete actions.
type Bus struct {
	logger logger.Logger

	mu       sync.Mutex
	handlers map[string][]busEntry
	nextID   int
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		logger:   log.With(map[string]interface{}{"component": "command-bus"}),
		handlers: make(map[string][]busEntry),
	}
}

// Register attaches a handler to a command name and returns an idempotent
// release function.
func (b *Bus) Register(name string, fn HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], busEntry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			entries := b.handlers[name]
			for i, e := range entries {
				if e.id == id {
					b.handlers[name] = append(entries[:i], entries[i+1:]...)
					break
				}
			}
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
			b.mu.Unlock()
		})
	}
}

// Dispatch invokes handlers in registration order. Returns false when no
// handler is registered for the command.
func (b *Bus) Dispatch(cmd Command) bool {
	b.mu.Lock()
	entries := make([]busEntry, len(b.handlers[cmd.Name]))
	copy(entries, b.handlers[cmd.Name])
	b.mu.Unlock()

	if len(entries) == 0 {
		b.logger.Debug("command with no handler", map[string]interface{}{
			"command": cmd.Name,
		})
		return false
	}
	for _, e := range entries {
		e.fn(cmd)
	}
	return true
}
