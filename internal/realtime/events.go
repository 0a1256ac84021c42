package realtime

import (
	"encoding/json"
	"time"
)

// EventType is the closed enumeration of events carried over channels. The
// string values are part of the wire contract.
type EventType string

const (
	EventMessageCreated EventType = "message_created"
	EventMessageUpdated EventType = "message_updated"
	EventMessageDeleted EventType = "message_deleted"

	EventConversationCreated       EventType = "conversation_created"
	EventConversationUpdated       EventType = "conversation_updated"
	EventConversationAssigned      EventType = "conversation_assigned"
	EventConversationStatusChanged EventType = "conversation_status_changed"

	EventTypingStart            EventType = "typing_start"
	EventTypingStop             EventType = "typing_stop"
	EventEnhancedTypingProgress EventType = "enhanced_typing_progress"

	EventPresenceOnline  EventType = "presence_online"
	EventPresenceOffline EventType = "presence_offline"
	EventPresenceAway    EventType = "presence_away"

	EventAIHandover         EventType = "ai_handover"
	EventSystemNotification EventType = "system_notification"
	EventError              EventType = "error"
)

var knownEventTypes = map[EventType]struct{}{
	EventMessageCreated:            {},
	EventMessageUpdated:            {},
	EventMessageDeleted:            {},
	EventConversationCreated:       {},
	EventConversationUpdated:       {},
	EventConversationAssigned:      {},
	EventConversationStatusChanged: {},
	EventTypingStart:               {},
	EventTypingStop:                {},
	EventEnhancedTypingProgress:    {},
	EventPresenceOnline:            {},
	EventPresenceOffline:           {},
	EventPresenceAway:              {},
	EventAIHandover:                {},
	EventSystemNotification:        {},
	EventError:                     {},
}

// Valid reports whether the event type belongs to the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Envelope is the typed unit of real-time communication. Payload shape is
// determined by Type.
type Envelope struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// TypingProgressPayload is the payload of enhanced_typing_progress events.
type TypingProgressPayload struct {
	Content    string    `json:"content"`
	Percentage float64   `json:"percentage"`
	Phase      string    `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	SenderType string    `json:"senderType"`
}

// TypingStatePayload is the payload of typing_start and typing_stop events.
type TypingStatePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	IsTyping bool   `json:"isTyping"`
	Content  string `json:"content,omitempty"`
}

// PresencePayload is the payload of presence_online, presence_away and
// presence_offline events.
type PresencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// AssignmentPayload is the payload of conversation_assigned events.
type AssignmentPayload struct {
	ConversationID string `json:"conversationId"`
	AssigneeID     string `json:"assigneeId"`
	AssignedBy     string `json:"assignedBy"`
}
