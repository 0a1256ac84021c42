// Package store talks to the persistence HTTP API. Messages, assignment and
// conversation state live behind that API, never in this process.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"support-engine/internal/common/config"
	stderrors "support-engine/internal/common/errors"
	"support-engine/internal/common/logger"
)

// Message is the persisted shape returned by the API.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderType     string    `json:"senderType"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Metadata rides along with a persisted message and records what the
// pipeline did to the content.
type Metadata struct {
	Confidence       float64 `json:"confidence,omitempty"`
	Model            string  `json:"model,omitempty"`
	TokensUsed       int     `json:"tokensUsed,omitempty"`
	HumanizedApplied bool    `json:"humanizedApplied,omitempty"`
	TyposInjected    int     `json:"typosInjected,omitempty"`
}

// CreateMessageInput is the POST body for a new message.
type CreateMessageInput struct {
	ConversationID string   `json:"conversationId"`
	SenderType     string   `json:"senderType"`
	SenderID       string   `json:"senderId"`
	Content        string   `json:"content"`
	Metadata       Metadata `json:"metadata"`
}

// Store is the persistence boundary the pipeline depends on.
type Store interface {
	CreateMessage(ctx context.Context, input CreateMessageInput) (*Message, error)
	UpdateMessage(ctx context.Context, messageID, content string) (*Message, error)
	AssignConversation(ctx context.Context, conversationID, assigneeID, assignedBy string) error
}

type Client struct {
	cfg    config.APIConfig
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.APIConfig, log logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: config.GetDuration(cfg.Timeout)},
		logger: log.With(map[string]interface{}{"component": "store"}),
	}
}

// CreateMessage persists a new message and returns the stored row with its
// server-assigned ID.
func (c *Client) CreateMessage(ctx context.Context, input CreateMessageInput) (*Message, error) {
	var out Message
	path := fmt.Sprintf("/api/conversations/%s/messages", input.ConversationID)
	if err := c.do(ctx, http.MethodPost, path, input, &out); err != nil {
		return nil, stderrors.NewMessagePersistFailedError(input.ConversationID, err)
	}
	return &out, nil
}

// UpdateMessage replaces the content of an existing message.
func (c *Client) UpdateMessage(ctx context.Context, messageID, content string) (*Message, error) {
	var out Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPatch, "/api/messages/"+messageID, body, &out); err != nil {
		return nil, stderrors.NewMessagePersistFailedError(messageID, err)
	}
	return &out, nil
}

// AssignConversation hands the conversation to a human or AI assignee.
func (c *Client) AssignConversation(ctx context.Context, conversationID, assigneeID, assignedBy string) error {
	body := map[string]string{
		"assigneeId": assigneeID,
		"assignedBy": assignedBy,
	}
	path := fmt.Sprintf("/api/conversations/%s/assign", conversationID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return stderrors.NewMessagePersistFailedError(conversationID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
