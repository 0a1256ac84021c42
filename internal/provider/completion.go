// Package provider wraps the external chat-completion service behind a
// small client with retries and deadline handling.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"support-engine/internal/common/config"
	"support-engine/internal/common/logger"
)

var (
	ErrCompletionTimeout = errors.New("COMPLETION_TIMEOUT")
	ErrCompletionFailed  = errors.New("COMPLETION_FAILED")
)

// Message is one turn of the prompt, role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the provider's answer plus token accounting for the
// bypass decision upstream.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
}

// Completer generates a reply for a prompt. Implemented by Client; tests
// substitute fakes.
type Completer interface {
	Complete(ctx context.Context, messages []Message, model string) (*Completion, error)
}

type Client struct {
	cfg    config.CompletionConfig
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.CompletionConfig, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			// No client-level timeout, the context carries the deadline.
		},
		logger: log.With(map[string]interface{}{"component": "completion"}),
	}
}

// Complete posts the prompt and retries transient failures with exponential
// backoff. The context deadline wins over the retry budget.
func (c *Client) Complete(ctx context.Context, messages []Message, model string) (*Completion, error) {
	if model == "" {
		model = c.cfg.Model
	}

	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}
	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(c.cfg.Timeout))
	defer cancel()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrCompletionTimeout
			}
		}

		// Rebuild per attempt, the body reader is consumed on send.
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if reqErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
			if !retryableStatus(lastErr) {
				break
			}
		}

		if ctx.Err() != nil {
			return nil, ErrCompletionTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrCompletionTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, lastErr)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrCompletionFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrCompletionFailed, err)
	}
	if len(apiResponse.Choices) == 0 || strings.TrimSpace(apiResponse.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrCompletionFailed)
	}

	c.logger.Info("completion finished", map[string]interface{}{
		"model":      apiResponse.Model,
		"tokensUsed": apiResponse.Usage.TotalTokens,
	})

	return &Completion{
		Content:    strings.TrimSpace(apiResponse.Choices[0].Message.Content),
		Model:      apiResponse.Model,
		TokensUsed: apiResponse.Usage.TotalTokens,
	}, nil
}

// 4xx other than 429 will not succeed on retry.
func retryableStatus(err error) bool {
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "status %d", &code); scanErr != nil {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	return code < 400 || code >= 500
}
