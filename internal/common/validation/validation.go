// Package validation rejects malformed identifiers and event payloads at the
// entry boundary, before anything touches transport or pipeline state.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	stderrors "support-engine/internal/common/errors"
)

// Identifiers are opaque keys that end up embedded in channel names, so they
// must never contain the ':' separator or whitespace.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidIdentifier reports whether a value is usable as an org, conversation,
// or actor identifier.
func ValidIdentifier(value string) bool {
	return identifierPattern.MatchString(value)
}

// CheckIdentifier returns a structured error for a malformed identifier.
func CheckIdentifier(kind, value string) error {
	if !ValidIdentifier(value) {
		return stderrors.NewInvalidIdentifierError(kind, value)
	}
	return nil
}

// payloadSchemas maps event types to JSON schemas for their payloads. Event
// types without an entry are passed through unvalidated.
var payloadSchemas = map[string]map[string]interface{}{
	"typing_start": {
		"type":     "object",
		"required": []interface{}{"userId", "isTyping"},
		"properties": map[string]interface{}{
			"userId":   map[string]interface{}{"type": "string", "minLength": 1},
			"isTyping": map[string]interface{}{"type": "boolean"},
			"userName": map[string]interface{}{"type": "string"},
			"content":  map[string]interface{}{"type": "string"},
		},
	},
	"typing_stop": {
		"type":     "object",
		"required": []interface{}{"userId", "isTyping"},
		"properties": map[string]interface{}{
			"userId":   map[string]interface{}{"type": "string", "minLength": 1},
			"isTyping": map[string]interface{}{"type": "boolean"},
		},
	},
	"enhanced_typing_progress": {
		"type":     "object",
		"required": []interface{}{"content", "percentage", "phase"},
		"properties": map[string]interface{}{
			"content":    map[string]interface{}{"type": "string"},
			"percentage": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
			"phase": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"reading", "thinking", "typing", "pausing", "correcting"},
			},
			"timestamp":  map[string]interface{}{"type": "string"},
			"senderType": map[string]interface{}{"type": "string"},
		},
	},
	"conversation_assigned": {
		"type":     "object",
		"required": []interface{}{"conversationId", "assigneeId"},
		"properties": map[string]interface{}{
			"conversationId": map[string]interface{}{"type": "string", "minLength": 1},
			"assigneeId":     map[string]interface{}{"type": "string", "minLength": 1},
			"assignedBy":     map[string]interface{}{"type": "string"},
		},
	},
	"presence_online":  presenceSchema,
	"presence_away":    presenceSchema,
	"presence_offline": presenceSchema,
}

var presenceSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"userId"},
	"properties": map[string]interface{}{
		"userId":   map[string]interface{}{"type": "string", "minLength": 1},
		"userName": map[string]interface{}{"type": "string"},
	},
}

// ValidatePayload checks an event payload against the schema registered for
// its event type, if any.
func ValidatePayload(eventType string, payload map[string]interface{}) error {
	schemaMap, ok := payloadSchemas[eventType]
	if !ok {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return stderrors.NewPayloadValidationFailedError(eventType, strings.Join(details, "; "))
	}

	return nil
}
