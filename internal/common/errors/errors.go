// Package errors provides standardized error handling for the realtime and
// response-pipeline subsystems.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Transport errors: non-fatal at the broadcast boundary, surfaced as false
// returns, never thrown across it.
const (
	ErrCodeChannelSubscribeTimeout ErrorCode = "CHANNEL_SUBSCRIBE_TIMEOUT"
	ErrCodeChannelSendFailed       ErrorCode = "CHANNEL_SEND_FAILED"
	ErrCodeTransportClosed         ErrorCode = "TRANSPORT_CLOSED"
)

// Generation errors: terminate the pipeline for that message.
const (
	ErrCodeCompletionFailed  ErrorCode = "COMPLETION_FAILED"
	ErrCodeCompletionTimeout ErrorCode = "COMPLETION_TIMEOUT"
)

// Validation errors: rejected at the entry boundary.
const (
	ErrCodeInvalidIdentifier       ErrorCode = "INVALID_IDENTIFIER"
	ErrCodePayloadValidationFailed ErrorCode = "PAYLOAD_VALIDATION_FAILED"
)

// Persistence errors.
const (
	ErrCodeMessagePersistFailed ErrorCode = "MESSAGE_PERSIST_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewChannelSubscribeTimeoutError creates a retryable transport error.
func NewChannelSubscribeTimeoutError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSubscribeTimeout,
		Message:   "Timed out waiting for channel subscription",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelSendFailedError creates a retryable transport error.
func NewChannelSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSendFailed,
		Message:   "Failed to send envelope on channel",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportClosedError creates a non-retryable transport error.
func NewTransportClosedError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportClosed,
		Message:   "Channel transport is closed",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletionFailedError creates a non-retryable generation error.
func NewCompletionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionFailed,
		Message:   "Completion provider call failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletionTimeoutError creates a retryable generation error.
func NewCompletionTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionTimeout,
		Message:   "Completion provider call timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidIdentifierError creates a non-retryable validation error.
func NewInvalidIdentifierError(kind, value string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidIdentifier,
		Message:   "Malformed identifier rejected at entry boundary",
		Details:   fmt.Sprintf("%s: %q", kind, value),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadValidationFailedError creates a non-retryable validation error.
func NewPayloadValidationFailedError(eventType, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadValidationFailed,
		Message:   "Event payload failed schema validation",
		Details:   fmt.Sprintf("eventType: %s, %s", eventType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessagePersistFailedError creates a retryable persistence error.
func NewMessagePersistFailedError(conversationID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMessagePersistFailed,
		Message:   "Failed to persist message",
		Details:   fmt.Sprintf("conversationId: %s, error: %s", conversationID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
