package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-engine/internal/common/config"
	"support-engine/internal/common/logger"
)

func completionBody(content string, tokens int) string {
	body, _ := json.Marshal(map[string]interface{}{
		"model": "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": tokens},
	})
	return string(body)
}

func newTestClient(t *testing.T, baseURL string, overrides func(*config.CompletionConfig)) *Client {
	t.Helper()
	cfg := config.CompletionConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		Timeout:     5000,
		MaxRetries:  2,
		MaxTokens:   500,
		Temperature: 0.7,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return NewClient(cfg, logger.NewTestLogger(t))
}

func TestComplete_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  The refund is on its way.  ", 57)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	out, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "Where is my refund?"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "The refund is on its way.", out.Content, "content is trimmed")
	assert.Equal(t, "gpt-4o-mini", out.Model)
	assert.Equal(t, 57, out.TokensUsed)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"], "empty model falls back to config")
	assert.Equal(t, float64(500), gotBody["max_tokens"])
	assert.Len(t, gotBody["messages"], 2)
}

func TestComplete_ExplicitModelWins(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		_, _ = w.Write([]byte(completionBody("ok then", 5)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gotModel)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completionBody("third time lucky", 12)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_RateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionBody("slowed down and succeeded", 9)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "slowed down and succeeded", out.Content)
}

func TestComplete_TimeoutSurfacesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(completionBody("too late", 1)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *config.CompletionConfig) {
		cfg.Timeout = 50
	})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionTimeout)
}

func TestComplete_EmptyCompletionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("   ", 3)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Contains(t, err.Error(), "empty completion")
}

func TestComplete_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(completionBody("fine", 2)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *config.CompletionConfig) {
		cfg.APIKey = ""
	})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, "")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}
