package realtime

import (
	"fmt"

	"support-engine/internal/common/validation"
)

// Channel naming is a stable interop contract; the formats below must not
// change. Identifiers are validated before they are embedded so a malformed
// id can never produce a channel that another client would mis-parse.

// OrgChannel returns "org:<orgId>".
func OrgChannel(orgID string) (string, error) {
	if err := validation.CheckIdentifier("organization", orgID); err != nil {
		return "", err
	}
	return fmt.Sprintf("org:%s", orgID), nil
}

// ConversationChannel returns "org:<orgId>:conversation:<convId>".
func ConversationChannel(orgID, conversationID string) (string, error) {
	if err := validation.CheckIdentifier("organization", orgID); err != nil {
		return "", err
	}
	if err := validation.CheckIdentifier("conversation", conversationID); err != nil {
		return "", err
	}
	return fmt.Sprintf("org:%s:conversation:%s", orgID, conversationID), nil
}

// TypingChannel returns "org:<orgId>:conversation:<convId>:typing".
func TypingChannel(orgID, conversationID string) (string, error) {
	base, err := ConversationChannel(orgID, conversationID)
	if err != nil {
		return "", err
	}
	return base + ":typing", nil
}

// WidgetChannel returns "org:<orgId>:widget:<convId>".
func WidgetChannel(orgID, conversationID string) (string, error) {
	if err := validation.CheckIdentifier("organization", orgID); err != nil {
		return "", err
	}
	if err := validation.CheckIdentifier("conversation", conversationID); err != nil {
		return "", err
	}
	return fmt.Sprintf("org:%s:widget:%s", orgID, conversationID), nil
}
