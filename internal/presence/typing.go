// Package presence tracks ephemeral per-conversation state: who is typing
// what, right now, and which actors are online.
package presence

import (
	"context"
	"sync"
	"time"

	"support-engine/internal/common/clock"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/metrics"
)

// TypingState is one actor's live typing record in one conversation.
type TypingState struct {
	ActorID        string
	ActorName      string
	LiveContent    string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// TrackerConfig controls the inactivity window after which a typing state
// expires. Chat typing and chord sequences are separate timeout domains, so
// each gets its own Tracker.
type TrackerConfig struct {
	Timeout time.Duration
}

// ExpireFunc is invoked for each state removed by the inactivity timeout,
// outside the tracker lock.
type ExpireFunc func(conversationID string, state TypingState)

// Tracker maintains at most one active TypingState per (conversation, actor).
// Explicit stop and inactivity timeout converge on the same removal, so a
// near-simultaneous pair is harmless.
type Tracker struct {
	clk      clock.Clock
	cfg      TrackerConfig
	logger   logger.Logger
	onExpire ExpireFunc

	mu     sync.Mutex
	states map[string]map[string]*TypingState // conversation -> actor
}

func NewTracker(clk clock.Clock, cfg TrackerConfig, log logger.Logger, onExpire ExpireFunc) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Tracker{
		clk:      clk,
		cfg:      cfg,
		logger:   log.With(map[string]interface{}{"component": "typing-tracker"}),
		onExpire: onExpire,
		states:   make(map[string]map[string]*TypingState),
	}
}

// Start records that an actor began typing. A duplicate start collapses into
// the existing state rather than creating a second one.
func (t *Tracker) Start(conversationID, actorID, actorName string) {
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	actors, ok := t.states[conversationID]
	if !ok {
		actors = make(map[string]*TypingState)
		t.states[conversationID] = actors
	}

	if st, exists := actors[actorID]; exists {
		st.LastActivityAt = now
		if actorName != "" {
			st.ActorName = actorName
		}
		return
	}

	actors[actorID] = &TypingState{
		ActorID:        actorID,
		ActorName:      actorName,
		StartedAt:      now,
		LastActivityAt: now,
	}
	t.updateGauge()
}

// Update refreshes an actor's live partial content. A content update without
// a prior start creates the state, guarding against a dropped start event.
func (t *Tracker) Update(conversationID, actorID, content string) {
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	actors, ok := t.states[conversationID]
	if !ok {
		actors = make(map[string]*TypingState)
		t.states[conversationID] = actors
	}

	st, exists := actors[actorID]
	if !exists {
		st = &TypingState{
			ActorID:   actorID,
			StartedAt: now,
		}
		actors[actorID] = st
		t.updateGauge()
	}
	st.LiveContent = content
	st.LastActivityAt = now
}

// Stop removes an actor's typing state. Idempotent: stopping an actor that
// is not typing is a no-op.
func (t *Tracker) Stop(conversationID, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(conversationID, actorID)
}

func (t *Tracker) removeLocked(conversationID, actorID string) {
	actors, ok := t.states[conversationID]
	if !ok {
		return
	}
	if _, exists := actors[actorID]; !exists {
		return
	}
	delete(actors, actorID)
	if len(actors) == 0 {
		delete(t.states, conversationID)
	}
	t.updateGauge()
}

// ExpireStale removes every state whose last activity is older than the
// configured timeout and reports each removal through the expire callback.
func (t *Tracker) ExpireStale() int {
	now := t.clk.Now()

	type expired struct {
		conversationID string
		state          TypingState
	}
	var removed []expired

	t.mu.Lock()
	for convID, actors := range t.states {
		for actorID, st := range actors {
			if now.Sub(st.LastActivityAt) > t.cfg.Timeout {
				removed = append(removed, expired{conversationID: convID, state: *st})
				delete(actors, actorID)
			}
		}
		if len(actors) == 0 {
			delete(t.states, convID)
		}
	}
	t.updateGauge()
	t.mu.Unlock()

	for _, r := range removed {
		t.logger.Debug("typing state expired", map[string]interface{}{
			"conversationId": r.conversationID,
			"actorId":        r.state.ActorID,
		})
		if t.onExpire != nil {
			t.onExpire(r.conversationID, r.state)
		}
	}
	return len(removed)
}

// StartExpiry runs the expiry scan at half the timeout window so the timeout
// path fires even when no explicit stop event ever arrives.
func (t *Tracker) StartExpiry(ctx context.Context) {
	interval := t.cfg.Timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := t.clk.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				t.ExpireStale()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Snapshot returns the actors currently typing in a conversation. Order is
// not meaningful.
func (t *Tracker) Snapshot(conversationID string) []TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	actors := t.states[conversationID]
	out := make([]TypingState, 0, len(actors))
	for _, st := range actors {
		out = append(out, *st)
	}
	return out
}

// updateGauge recomputes the active-session metric. Caller holds the lock.
func (t *Tracker) updateGauge() {
	total := 0
	for _, actors := range t.states {
		total += len(actors)
	}
	metrics.TypingSessionsActive.Set(float64(total))
}
