package pipeline

import (
	"sync"
	"time"

	"support-engine/internal/common/clock"
)

// Debouncer coalesces rapid triggers per key into a single callback after a
// quiet window. Visitor keystrokes arrive in bursts; the suggestion pipeline
// should only run once the burst settles.
type Debouncer struct {
	clk    clock.Clock
	window time.Duration

	mu      sync.Mutex
	pending map[string]*debounceEntry
}

type debounceEntry struct {
	timer clock.Timer
	fn    func()
}

func NewDebouncer(clk clock.Clock, window time.Duration) *Debouncer {
	return &Debouncer{
		clk:     clk,
		window:  window,
		pending: make(map[string]*debounceEntry),
	}
}

// Trigger schedules fn to run after the quiet window. A second Trigger for
// the same key inside the window replaces fn and restarts the window. The
// replaced entry's timer is never reused: a fire that already happened when
// the replacement arrives runs a no-op instead of the newer fn, so the new
// fn always gets a full quiet window.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.pending[key]; ok {
		old.fn = func() {}
	}

	e := &debounceEntry{timer: d.clk.NewTimer(d.window), fn: fn}
	d.pending[key] = e

	go func() {
		<-e.timer.C()
		d.mu.Lock()
		fn := e.fn
		if d.pending[key] == e {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		fn()
	}()
}

// Cancel drops a pending trigger without running it. The timer is left to
// fire into a no-op so the waiting goroutine always exits.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.fn = func() {}
		delete(d.pending, key)
	}
}

// Pending reports whether a trigger is waiting for the given key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
