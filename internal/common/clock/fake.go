package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers and tickers fire only
// when Advance moves the fake time past their deadlines.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	ch      chan time.Time
	when    time.Time
	period  time.Duration // zero for one-shot timers
	stopped bool
}

// NewFake returns a Fake clock pinned to a fixed starting instant.
func NewFake() *Fake {
	return &Fake{
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	return f.NewTimer(d).C()
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{
		ch:   make(chan time.Time, 1),
		when: f.now.Add(d),
	}
	f.waiters = append(f.waiters, w)
	return &fakeTimer{clock: f, w: w}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{
		ch:     make(chan time.Time, 1),
		when:   f.now.Add(d),
		period: d,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTicker{clock: f, w: w}
}

// Advance moves the fake time forward, firing every timer and ticker whose
// deadline falls within the window, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		var next *fakeWaiter
		for _, w := range f.waiters {
			if w.stopped || w.when.After(target) {
				continue
			}
			if next == nil || w.when.Before(next.when) {
				next = w
			}
		}
		if next == nil {
			break
		}

		f.now = next.when
		select {
		case next.ch <- next.when:
		default:
			// receiver hasn't drained the previous tick
		}

		if next.period > 0 {
			next.when = next.when.Add(next.period)
		} else {
			next.stopped = true
		}
	}

	f.now = target
	f.compact()
	f.mu.Unlock()
}

func (f *Fake) compact() {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].when.Before(live[j].when) })
	f.waiters = live
}

// readd restores a waiter that was compacted away while stopped. Caller
// holds the lock.
func (f *Fake) readd(w *fakeWaiter) {
	for _, existing := range f.waiters {
		if existing == w {
			return
		}
	}
	f.waiters = append(f.waiters, w)
}

type fakeTimer struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time { return t.w.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.w.stopped
	t.w.stopped = true
	return active
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.w.stopped
	t.w.stopped = false
	t.w.when = t.clock.now.Add(d)
	t.clock.readd(t.w)
	return active
}

type fakeTicker struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
}
