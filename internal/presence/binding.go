package presence

import (
	"context"
	"encoding/json"
	"sync"

	"support-engine/internal/common/clock"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/validation"
	"support-engine/internal/realtime"
)

// AIActorID identifies the assistant in typing state, so simulated typing
// progress and human typing share one presence surface.
const AIActorID = "assistant"

// Binder wires a Tracker to the broadcast protocol for one organization:
// inbound typing events mutate tracker state, and timeout expiries emit the
// typing_stop the dropped explicit event never delivered.
type Binder struct {
	broadcaster *realtime.Broadcaster
	tracker     *Tracker
	orgID       string
	logger      logger.Logger

	mu    sync.Mutex
	bound map[string]func() // conversationID -> release
}

func NewBinder(clk clock.Clock, cfg TrackerConfig, log logger.Logger, broadcaster *realtime.Broadcaster, orgID string) *Binder {
	b := &Binder{
		broadcaster: broadcaster,
		orgID:       orgID,
		logger:      log.With(map[string]interface{}{"component": "presence-binder", "orgId": orgID}),
		bound:       make(map[string]func()),
	}
	b.tracker = NewTracker(clk, cfg, log, b.expire)
	return b
}

// Tracker returns the tracker owned by this binder.
func (b *Binder) Tracker() *Tracker {
	return b.tracker
}

// expire broadcasts the stop event a timed-out actor never sent.
func (b *Binder) expire(conversationID string, state TypingState) {
	name, err := realtime.TypingChannel(b.orgID, conversationID)
	if err != nil {
		return
	}
	b.broadcaster.Broadcast(context.Background(), name, realtime.EventTypingStop, realtime.TypingStatePayload{
		UserID:   state.ActorID,
		IsTyping: false,
	})
}

// Bind subscribes the tracker to the typing channel of one conversation.
// The returned release function detaches all handlers and is idempotent.
func (b *Binder) Bind(ctx context.Context, conversationID string) (func(), error) {
	name, err := realtime.TypingChannel(b.orgID, conversationID)
	if err != nil {
		return nil, err
	}

	unsubStart, err := b.broadcaster.Subscribe(ctx, name, realtime.EventTypingStart, func(env *realtime.Envelope) {
		p, ok := b.decodeTypingPayload(env)
		if !ok {
			return
		}
		b.tracker.Start(conversationID, p.UserID, p.UserName)
		if p.Content != "" {
			b.tracker.Update(conversationID, p.UserID, p.Content)
		}
	})
	if err != nil {
		return nil, err
	}

	unsubStop, err := b.broadcaster.Subscribe(ctx, name, realtime.EventTypingStop, func(env *realtime.Envelope) {
		p, ok := b.decodeTypingPayload(env)
		if !ok {
			return
		}
		b.tracker.Stop(conversationID, p.UserID)
	})
	if err != nil {
		unsubStart()
		return nil, err
	}

	unsubProgress, err := b.broadcaster.Subscribe(ctx, name, realtime.EventEnhancedTypingProgress, func(env *realtime.Envelope) {
		var p realtime.TypingProgressPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		b.tracker.Update(conversationID, AIActorID, p.Content)
	})
	if err != nil {
		unsubStart()
		unsubStop()
		return nil, err
	}

	return func() {
		unsubStart()
		unsubStop()
		unsubProgress()
	}, nil
}

// EnsureBound binds a conversation on first sight and is a no-op for
// conversations already bound, so request handlers can call it per request.
func (b *Binder) EnsureBound(ctx context.Context, conversationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.bound[conversationID]; ok {
		return nil
	}
	release, err := b.Bind(ctx, conversationID)
	if err != nil {
		return err
	}
	b.bound[conversationID] = release
	b.logger.Debug("conversation bound", map[string]interface{}{"conversationId": conversationID})
	return nil
}

// ReleaseAll detaches every conversation bound through EnsureBound.
func (b *Binder) ReleaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, release := range b.bound {
		release()
		delete(b.bound, id)
	}
}

// BindRoster subscribes a roster to the organization channel's presence
// events. The returned release function detaches all handlers.
func (b *Binder) BindRoster(ctx context.Context, roster *Roster) (func(), error) {
	name, err := realtime.OrgChannel(b.orgID)
	if err != nil {
		return nil, err
	}

	statuses := []struct {
		event  realtime.EventType
		status Status
	}{
		{realtime.EventPresenceOnline, StatusOnline},
		{realtime.EventPresenceAway, StatusAway},
		{realtime.EventPresenceOffline, StatusOffline},
	}

	releases := make([]func(), 0, len(statuses))
	for _, s := range statuses {
		status := s.status
		unsub, err := b.broadcaster.Subscribe(ctx, name, s.event, func(env *realtime.Envelope) {
			p, ok := b.decodePresencePayload(env)
			if !ok {
				return
			}
			roster.Set(p.UserID, status)
		})
		if err != nil {
			for _, r := range releases {
				r()
			}
			return nil, err
		}
		releases = append(releases, unsub)
	}

	return func() {
		for _, r := range releases {
			r()
		}
	}, nil
}

// decodeTypingPayload validates and decodes a typing_start/typing_stop
// payload. Malformed payloads and identifiers are logged and ignored, never
// coerced.
func (b *Binder) decodeTypingPayload(env *realtime.Envelope) (realtime.TypingStatePayload, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		b.logger.Warn("unreadable typing payload", map[string]interface{}{
			"channel": env.Channel,
			"error":   err.Error(),
		})
		return realtime.TypingStatePayload{}, false
	}
	if err := validation.ValidatePayload(string(env.Type), raw); err != nil {
		b.logger.Warn("typing payload rejected", map[string]interface{}{
			"channel": env.Channel,
			"error":   err.Error(),
		})
		return realtime.TypingStatePayload{}, false
	}

	var p realtime.TypingStatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return realtime.TypingStatePayload{}, false
	}
	if !validation.ValidIdentifier(p.UserID) {
		b.logger.Warn("typing event with malformed actor id ignored", map[string]interface{}{
			"channel": env.Channel,
			"userId":  p.UserID,
		})
		return realtime.TypingStatePayload{}, false
	}
	return p, true
}

// decodePresencePayload validates and decodes a presence event payload with
// the same reject-never-coerce rules as typing payloads.
func (b *Binder) decodePresencePayload(env *realtime.Envelope) (realtime.PresencePayload, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		b.logger.Warn("unreadable presence payload", map[string]interface{}{
			"channel": env.Channel,
			"error":   err.Error(),
		})
		return realtime.PresencePayload{}, false
	}
	if err := validation.ValidatePayload(string(env.Type), raw); err != nil {
		b.logger.Warn("presence payload rejected", map[string]interface{}{
			"channel": env.Channel,
			"error":   err.Error(),
		})
		return realtime.PresencePayload{}, false
	}

	var p realtime.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return realtime.PresencePayload{}, false
	}
	if !validation.ValidIdentifier(p.UserID) {
		b.logger.Warn("presence event with malformed actor id ignored", map[string]interface{}{
			"channel": env.Channel,
			"userId":  p.UserID,
		})
		return realtime.PresencePayload{}, false
	}
	return p, true
}
