package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-engine/internal/analysis"
	"support-engine/internal/common/clock"
	"support-engine/internal/common/config"
	"support-engine/internal/common/logger"
	"support-engine/internal/provider"
	"support-engine/internal/realtime"
	"support-engine/internal/store"
	"support-engine/internal/typingsim"
)

type fakeCompleter struct {
	mu       sync.Mutex
	resp     *provider.Completion
	err      error
	messages [][]provider.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []provider.Message, model string) (*provider.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return nil, f.err
	}
	out := *f.resp
	return &out, nil
}

func (f *fakeCompleter) lastMessages() []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

type fakeStore struct {
	mu         sync.Mutex
	created    []store.CreateMessageInput
	failCreate bool
}

func (f *fakeStore) CreateMessage(ctx context.Context, input store.CreateMessageInput) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, errors.New("persistence unavailable")
	}
	f.created = append(f.created, input)
	return &store.Message{
		ID:             "msg-1",
		ConversationID: input.ConversationID,
		SenderType:     input.SenderType,
		SenderID:       input.SenderID,
		Content:        input.Content,
		Metadata:       input.Metadata,
	}, nil
}

func (f *fakeStore) UpdateMessage(ctx context.Context, messageID, content string) (*store.Message, error) {
	return &store.Message{ID: messageID, Content: content}, nil
}

func (f *fakeStore) AssignConversation(ctx context.Context, conversationID, assigneeID, assignedBy string) error {
	return nil
}

func (f *fakeStore) createdInputs() []store.CreateMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CreateMessageInput, len(f.created))
	copy(out, f.created)
	return out
}

type pipelineHarness struct {
	orch        *Orchestrator
	completer   *fakeCompleter
	store       *fakeStore
	broadcaster *realtime.Broadcaster
	clk         *clock.Fake
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewTestLogger(t)
	fake := clock.NewFake()
	registry := realtime.NewRegistry(realtime.NewRedisTransport(client), fake, realtime.RegistryConfig{}, log)
	t.Cleanup(registry.Destroy)
	broadcaster := realtime.NewBroadcaster(registry, fake, realtime.BroadcasterConfig{}, log)
	simulator := typingsim.NewSimulator(fake, log)

	completer := &fakeCompleter{resp: &provider.Completion{
		Content:    "All set.",
		Model:      "gpt-4o-mini",
		TokensUsed: 42,
	}}
	st := &fakeStore{}

	orch := NewOrchestrator(
		completer, st, broadcaster, simulator, fake,
		config.PipelineConfig{
			MaxProcessingTime:   10000,
			MaxTokensBypass:     800,
			ConfidenceThreshold: 0.6,
			TypoProbability:     0.02,
		},
		nil, log,
		rand.New(rand.NewSource(7)),
	)

	return &pipelineHarness{
		orch:        orch,
		completer:   completer,
		store:       st,
		broadcaster: broadcaster,
		clk:         fake,
	}
}

// execute runs the pipeline in a goroutine while the test goroutine pumps the
// fake clock, so typing simulation waits resolve without real sleeping.
func (h *pipelineHarness) execute(t *testing.T, input *Input) (*Result, error) {
	t.Helper()

	var (
		result *Result
		err    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err = h.orch.Execute(context.Background(), input)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		select {
		case <-done:
			return result, err
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("pipeline never finished")
		}
		h.clk.Advance(250 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

func billingComplaintInput() *Input {
	return &Input{
		OrganizationID: "org-1",
		ConversationID: "conv-1",
		Message:        "I was charged twice this month and nobody has responded. This is unacceptable!",
		Persona:        "friendly",
		Customer: analysis.CustomerInfo{
			Name:              "Sam",
			Tier:              "enterprise",
			PriorInteractions: 3,
		},
	}
}

func TestExecute_BillingComplaintEndToEnd(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{
		Content:    "I can see the duplicate charge on your account and I will utilize the billing tools to reverse it right away.",
		Model:      "gpt-4o-mini",
		TokensUsed: 64,
	}

	input := billingComplaintInput()
	input.Options = Options{
		TypoProbability:     0,
		ConfidenceThreshold: 0.6,
		MaxProcessingTime:   30 * time.Second,
	}

	typingCh, err := realtime.TypingChannel("org-1", "conv-1")
	require.NoError(t, err)
	convCh, err := realtime.ConversationChannel("org-1", "conv-1")
	require.NoError(t, err)

	var progressCount atomic.Int32
	unsubTyping, err := h.broadcaster.Subscribe(context.Background(), typingCh, realtime.EventEnhancedTypingProgress, func(env *realtime.Envelope) {
		progressCount.Add(1)
	})
	require.NoError(t, err)
	defer unsubTyping()

	type createdSeen struct {
		msg                store.Message
		progressBeforehand int32
	}
	created := make(chan createdSeen, 1)
	unsubMsg, err := h.broadcaster.Subscribe(context.Background(), convCh, realtime.EventMessageCreated, func(env *realtime.Envelope) {
		var msg store.Message
		if json.Unmarshal(env.Payload, &msg) == nil {
			select {
			case created <- createdSeen{msg: msg, progressBeforehand: progressCount.Load()}:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer unsubMsg()

	result, err := h.execute(t, input)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.False(t, result.Escalated)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, 64, result.TokensUsed)

	// An upset customer gets the empathetic register in the prompt.
	msgs := h.completer.lastMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, strings.ToLower(msgs[0].Content), "upset")
	assert.Equal(t, input.Message, msgs[len(msgs)-1].Content)

	// Humanization rewrote the stock phrasing and greeted the customer.
	assert.NotEqual(t, h.completer.resp.Content, result.Response)
	assert.Contains(t, result.Response, "use the billing tools")
	assert.NotContains(t, result.Response, "utilize")
	assert.True(t, strings.HasPrefix(result.Response, "Good morning Sam"), "got %q", result.Response)

	hp := result.HumanLikeProcessing
	assert.True(t, hp.SentimentAnalysis.Applied)
	assert.Equal(t, analysis.SentimentNegative, hp.Sentiment.Sentiment)
	assert.Equal(t, "empathetic", hp.Tone)
	assert.True(t, hp.PhraseFiltering.Applied)
	assert.True(t, hp.Personalization.Applied)
	assert.True(t, hp.TypoInjection.Applied)
	assert.Empty(t, hp.Corrections)
	assert.True(t, hp.TypingSimulation.Applied)
	assert.Empty(t, hp.BypassReason)

	// Persisted content is the humanized text, and it was announced after at
	// least one typing progress tick had already gone out.
	inputs := h.store.createdInputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, result.Response, inputs[0].Content)
	assert.Equal(t, "ai", inputs[0].SenderType)
	assert.Equal(t, AISenderID, inputs[0].SenderID)
	assert.True(t, inputs[0].Metadata.HumanizedApplied)
	assert.Equal(t, 0, inputs[0].Metadata.TyposInjected)

	select {
	case seen := <-created:
		assert.Equal(t, "msg-1", seen.msg.ID)
		assert.Equal(t, result.Response, seen.msg.Content)
		assert.GreaterOrEqual(t, seen.progressBeforehand, int32(1))
	case <-time.After(3 * time.Second):
		t.Fatal("message_created never delivered")
	}
	assert.Eventually(t, func() bool { return progressCount.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
}

func TestExecute_ZeroTimeBudgetBypassesHumanization(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{
		Content:    "I will utilize the billing tools to reverse the charge for you today.",
		Model:      "gpt-4o-mini",
		TokensUsed: 30,
	}

	input := billingComplaintInput()
	input.Options = Options{
		TypoProbability:     0.5,
		ConfidenceThreshold: 0.6,
		MaxProcessingTime:   0, // zero budget: raw response goes straight through
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, h.completer.resp.Content, result.Response)
	hp := result.HumanLikeProcessing
	assert.NotEmpty(t, hp.BypassReason)
	assert.False(t, hp.PhraseFiltering.Applied)
	assert.False(t, hp.Personalization.Applied)
	assert.False(t, hp.TypoInjection.Applied)
	assert.False(t, hp.TypingSimulation.Applied)

	inputs := h.store.createdInputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, h.completer.resp.Content, inputs[0].Content)
	assert.False(t, inputs[0].Metadata.HumanizedApplied)
}

func TestExecute_TokenBudgetBypasses(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{Content: "Here is the full runbook for the migration you asked about.", TokensUsed: 1200}

	input := billingComplaintInput()
	input.Options = Options{
		MaxProcessingTime: 30 * time.Second,
		MaxTokens:         800,
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	assert.Contains(t, result.HumanLikeProcessing.BypassReason, "token budget")
	assert.Equal(t, h.completer.resp.Content, result.Response)
}

func TestExecute_TimeBudgetCutsSimulationShort(t *testing.T) {
	h := newPipelineHarness(t)
	long := strings.Repeat("I can see the duplicate charge and I am reversing it on the account right now. ", 20)
	h.completer.resp = &provider.Completion{Content: strings.TrimSpace(long), TokensUsed: 80}

	input := billingComplaintInput()
	input.Options = Options{
		TypoProbability:     0,
		ConfidenceThreshold: 0.2,
		MaxProcessingTime:   2 * time.Second,
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	require.True(t, result.Success)

	// A reply this long needs tens of seconds of keystroke pacing, far more
	// than the two-second budget allows.
	hp := result.HumanLikeProcessing
	assert.False(t, hp.TypingSimulation.Applied)
	assert.Equal(t, "simulation cut short", hp.TypingSimulation.Detail)
	assert.Less(t, result.ProcessingTime, 6*time.Second)

	// The full humanized text still gets persisted and announced.
	inputs := h.store.createdInputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, result.Response, inputs[0].Content)
	assert.Greater(t, len(result.Response), 1000)
}

func TestExecute_CompletionFailureAbortsEverything(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.err = provider.ErrCompletionFailed

	input := billingComplaintInput()
	input.Options = h.orch.DefaultOptions()

	result, err := h.execute(t, input)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, provider.ErrCompletionFailed)
	assert.Empty(t, h.store.createdInputs())
}

func TestExecute_PersistFailureSkipsBroadcast(t *testing.T) {
	h := newPipelineHarness(t)
	h.store.failCreate = true

	convCh, err := realtime.ConversationChannel("org-1", "conv-1")
	require.NoError(t, err)
	var createdSeen atomic.Int32
	unsub, err := h.broadcaster.Subscribe(context.Background(), convCh, realtime.EventMessageCreated, func(*realtime.Envelope) {
		createdSeen.Add(1)
	})
	require.NoError(t, err)
	defer unsub()

	input := billingComplaintInput()
	input.Options = Options{
		MaxProcessingTime:    30 * time.Second,
		SkipTypingSimulation: true,
	}

	result, err := h.execute(t, input)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.MessageID)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), createdSeen.Load())
}

func TestExecute_EscalationLanguageTriggersHandover(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{
		Content:    "I'm not sure about this charge, you may need to contact support for the billing team.",
		TokensUsed: 25,
	}

	convCh, err := realtime.ConversationChannel("org-1", "conv-1")
	require.NoError(t, err)
	handover := make(chan map[string]interface{}, 1)
	unsub, err := h.broadcaster.Subscribe(context.Background(), convCh, realtime.EventAIHandover, func(env *realtime.Envelope) {
		var payload map[string]interface{}
		if json.Unmarshal(env.Payload, &payload) == nil {
			select {
			case handover <- payload:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer unsub()

	input := billingComplaintInput()
	input.Options = Options{
		ConfidenceThreshold:  0.6,
		MaxProcessingTime:    30 * time.Second,
		SkipTypingSimulation: true,
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Escalated)
	assert.Contains(t, result.EscalationReason, "escalation language")
	assert.Less(t, result.Confidence, 0.6)

	// The reply is still delivered; escalation routes a human in alongside.
	assert.Len(t, h.store.createdInputs(), 1)

	select {
	case payload := <-handover:
		assert.Equal(t, "conv-1", payload["conversationId"])
		assert.Contains(t, payload["reason"], "escalation language")
	case <-time.After(3 * time.Second):
		t.Fatal("ai_handover never delivered")
	}
}

func TestExecute_LowConfidenceThresholdEscalates(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{Content: "Done.", TokensUsed: 3}

	input := billingComplaintInput()
	input.Options = Options{
		ConfidenceThreshold:  0.7,
		MaxProcessingTime:    30 * time.Second,
		SkipTypingSimulation: true,
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	assert.True(t, result.Escalated)
	assert.Contains(t, result.EscalationReason, "below threshold")
}

func TestExecute_SkipFlagsDisableStages(t *testing.T) {
	h := newPipelineHarness(t)
	h.completer.resp = &provider.Completion{Content: "I will utilize the standard process here for you.", TokensUsed: 10}

	input := billingComplaintInput()
	input.Options = Options{
		MaxProcessingTime:    30 * time.Second,
		SkipFilter:           true,
		SkipPersonalize:      true,
		SkipTypos:            true,
		SkipTypingSimulation: true,
	}

	result, err := h.execute(t, input)
	require.NoError(t, err)
	assert.Equal(t, h.completer.resp.Content, result.Response)
	hp := result.HumanLikeProcessing
	assert.False(t, hp.PhraseFiltering.Applied)
	assert.False(t, hp.Personalization.Applied)
	assert.False(t, hp.TypoInjection.Applied)
	assert.False(t, hp.TypingSimulation.Applied)
	assert.Empty(t, hp.BypassReason, "skipping stages is not a bypass")
}

func TestDefaultOptions_ResolvesConfig(t *testing.T) {
	h := newPipelineHarness(t)
	opts := h.orch.DefaultOptions()
	assert.Equal(t, 10*time.Second, opts.MaxProcessingTime)
	assert.Equal(t, 800, opts.MaxTokens)
	assert.Equal(t, 0.6, opts.ConfidenceThreshold)
	assert.Equal(t, 0.02, opts.TypoProbability)
}

func TestShouldBypass(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		tokens  int
		opts    Options
		want    bool
	}{
		{"within budgets", time.Second, 100, Options{MaxProcessingTime: 10 * time.Second, MaxTokens: 800}, false},
		{"zero time budget", 0, 0, Options{}, true},
		{"time exceeded", 11 * time.Second, 100, Options{MaxProcessingTime: 10 * time.Second}, true},
		{"tokens exceeded", time.Second, 900, Options{MaxProcessingTime: 10 * time.Second, MaxTokens: 800}, true},
		{"no token cap", time.Second, 90000, Options{MaxProcessingTime: 10 * time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := shouldBypass(tt.elapsed, tt.tokens, tt.opts)
			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestTimeOfDay(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "morning", timeOfDay(base.Add(8*time.Hour)))
	assert.Equal(t, "afternoon", timeOfDay(base.Add(13*time.Hour)))
	assert.Equal(t, "evening", timeOfDay(base.Add(20*time.Hour)))
}
