package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"support-engine/internal/analysis"
	"support-engine/internal/common/clock"
	"support-engine/internal/common/config"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/metrics"
	"support-engine/internal/common/observability"
	"support-engine/internal/humanize"
	"support-engine/internal/provider"
	"support-engine/internal/realtime"
	"support-engine/internal/store"
	"support-engine/internal/typingsim"
)

// AISenderID is the actor id persisted and broadcast for generated replies.
const AISenderID = "assistant"

// Orchestrator runs the response pipeline end to end. All collaborators are
// injected so tests can substitute fakes and a manual clock.
type Orchestrator struct {
	completer   provider.Completer
	store       store.Store
	broadcaster *realtime.Broadcaster
	simulator   *typingsim.Simulator
	clk         clock.Clock
	cfg         config.PipelineConfig
	obs         *observability.Observability
	logger      logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewOrchestrator(
	completer provider.Completer,
	st store.Store,
	broadcaster *realtime.Broadcaster,
	simulator *typingsim.Simulator,
	clk clock.Clock,
	cfg config.PipelineConfig,
	obs *observability.Observability,
	log logger.Logger,
	rng *rand.Rand,
) *Orchestrator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		completer:   completer,
		store:       st,
		broadcaster: broadcaster,
		simulator:   simulator,
		clk:         clk,
		cfg:         cfg,
		obs:         obs,
		logger:      log.With(map[string]interface{}{"component": "pipeline"}),
		rng:         rng,
	}
}

// DefaultOptions resolves the organization-level config into per-run options.
func (o *Orchestrator) DefaultOptions() Options {
	return Options{
		TypoProbability:     o.cfg.TypoProbability,
		ConfidenceThreshold: o.cfg.ConfidenceThreshold,
		MaxProcessingTime:   config.GetDuration(o.cfg.MaxProcessingTime),
		MaxTokens:           o.cfg.MaxTokensBypass,
	}
}

// Execute runs the strict stage sequence: sentiment, tone, completion,
// bypass check, filter, personalize, typo injection, typing simulation,
// then persist and broadcast. A completion failure aborts with nothing
// persisted or broadcast; humanization stage failures downgrade to
// "not applied" and the pipeline continues with the pre-stage text.
func (o *Orchestrator) Execute(ctx context.Context, input *Input) (*Result, error) {
	start := o.clk.Now()
	opts := input.Options
	result := &Result{}

	log := o.logger.With(map[string]interface{}{
		"orgId":          input.OrganizationID,
		"conversationId": input.ConversationID,
	})

	// Sentiment and tone are pure and cannot fail.
	sentiment := runStage(o.clk, "sentiment", &result.HumanLikeProcessing.SentimentAnalysis, func() analysis.SentimentAnalysis {
		return analysis.Analyze(input.Message, input.History)
	})
	result.HumanLikeProcessing.Sentiment = sentiment

	tone := runStage(o.clk, "tone", &result.HumanLikeProcessing.ToneAdaptation, func() analysis.ToneContext {
		return analysis.BuildToneContext(input.Persona, sentiment, input.Customer, input.History)
	})
	result.HumanLikeProcessing.Tone = tone.Tone
	result.HumanLikeProcessing.ToneAdaptation.Detail = tone.AdaptationReason

	completion, err := o.complete(ctx, input, tone)
	if err != nil {
		log.Error("completion failed", map[string]interface{}{"error": err.Error()})
		o.record("failed", o.clk.Now().Sub(start))
		result.Error = err
		return result, err
	}
	result.TokensUsed = completion.TokensUsed

	result.Confidence, result.EscalationReason = scoreConfidence(completion.Content)
	if result.EscalationReason != "" {
		result.Escalated = true
	}
	if opts.ConfidenceThreshold > 0 && result.Confidence < opts.ConfidenceThreshold {
		result.Escalated = true
		if result.EscalationReason == "" {
			result.EscalationReason = fmt.Sprintf("confidence %.2f below threshold %.2f", result.Confidence, opts.ConfidenceThreshold)
		}
	}

	response := completion.Content
	elapsed := o.clk.Now().Sub(start)
	if bypass, reason := shouldBypass(elapsed, completion.TokensUsed, opts); bypass {
		log.Warn("humanization bypassed", map[string]interface{}{"reason": reason})
		result.HumanLikeProcessing.BypassReason = reason
	} else {
		response = o.humanizeStages(ctx, input, response, opts, start, result)
	}

	result.Response = response
	result.ProcessingTime = o.clk.Now().Sub(start)

	if result.Escalated {
		o.broadcastHandover(ctx, input, result.EscalationReason)
	}

	if err := o.finalize(ctx, input, completion, result); err != nil {
		o.record("failed", result.ProcessingTime)
		result.Error = err
		return result, err
	}

	result.Success = true
	outcome := "completed"
	if result.HumanLikeProcessing.BypassReason != "" {
		outcome = "bypassed"
	}
	if result.Escalated {
		outcome = "escalated"
	}
	o.record(outcome, result.ProcessingTime)
	log.Info("pipeline finished", map[string]interface{}{
		"outcome":    outcome,
		"confidence": result.Confidence,
		"tokensUsed": result.TokensUsed,
	})
	return result, nil
}

func (o *Orchestrator) complete(ctx context.Context, input *Input, tone analysis.ToneContext) (*provider.Completion, error) {
	messages := []provider.Message{{Role: "system", Content: tone.SystemPrompt}}
	for _, ex := range tone.Examples {
		messages = append(messages,
			provider.Message{Role: "user", Content: ex.Customer},
			provider.Message{Role: "assistant", Content: ex.Assistant},
		)
	}
	messages = append(messages, provider.Message{Role: "user", Content: input.Message})

	stageStart := o.clk.Now()
	completion, err := o.completer.Complete(ctx, messages, "")
	metrics.PipelineStageDuration.WithLabelValues("completion").Observe(o.clk.Now().Sub(stageStart).Seconds())
	return completion, err
}

// humanizeStages applies filter, personalize, typo injection and typing
// simulation in order. Each stage is fenced: a panic inside one downgrades
// it to "not applied" and the pre-stage text survives.
func (o *Orchestrator) humanizeStages(ctx context.Context, input *Input, text string, opts Options, start time.Time, result *Result) string {
	hp := &result.HumanLikeProcessing

	if !opts.SkipFilter {
		text = o.guarded("filter", &hp.PhraseFiltering, text, func(in string) string {
			return humanize.FilterPhrases(in)
		})
	}

	if !opts.SkipPersonalize {
		text = o.guarded("personalize", &hp.Personalization, text, func(in string) string {
			return humanize.Personalize(in, humanize.PersonalizeContext{
				TimeOfDay:         timeOfDay(o.clk.Now()),
				CustomerName:      input.Customer.Name,
				Tier:              input.Customer.Tier,
				PriorInteractions: input.Customer.PriorInteractions,
			})
		})
	}

	if !opts.SkipTypos {
		text = o.guarded("typos", &hp.TypoInjection, text, func(in string) string {
			o.rngMu.Lock()
			defer o.rngMu.Unlock()
			out, corrections := humanize.InjectTypos(in, opts.TypoProbability, true, o.rng)
			hp.Corrections = corrections
			return out
		})
	}

	if !opts.SkipTypingSimulation {
		o.simulate(ctx, input, text, opts, start, result)
	}

	return text
}

func (o *Orchestrator) simulate(ctx context.Context, input *Input, text string, opts Options, start time.Time, result *Result) {
	hp := &result.HumanLikeProcessing
	channel, err := realtime.TypingChannel(input.OrganizationID, input.ConversationID)
	if err != nil {
		hp.TypingSimulation = StageRecord{Applied: false, Detail: err.Error()}
		return
	}

	// The time budget keeps applying mid-simulation: when the remaining
	// budget runs out, the simulation aborts and the full text is still
	// delivered without the human-paced cadence.
	if opts.MaxProcessingTime > 0 {
		remaining := opts.MaxProcessingTime - o.clk.Now().Sub(start)
		if remaining <= 0 {
			hp.TypingSimulation = StageRecord{Applied: false, Detail: "simulation cut short"}
			return
		}
		budgetCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-o.clk.After(remaining):
				cancel()
			case <-budgetCtx.Done():
			}
		}()
		ctx = budgetCtx
	}

	profile := typingsim.Profile{
		Persona:    input.Persona,
		Sentiment:  hp.Sentiment.Sentiment,
		Urgency:    hp.Sentiment.Urgency,
		Complexity: hp.Sentiment.Complexity,
	}
	timings := typingsim.CalculateTimings(text, profile)

	stageStart := o.clk.Now()
	simResult, _ := o.simulator.Simulate(ctx, text, timings, func(p typingsim.Progress) {
		o.broadcaster.Broadcast(ctx, channel, realtime.EventEnhancedTypingProgress, realtime.TypingProgressPayload{
			Content:    p.Content,
			Percentage: p.Percentage,
			Phase:      string(p.Phase),
			Timestamp:  o.clk.Now(),
			SenderType: "ai",
		})
	})
	hp.TypingSimulation = StageRecord{
		Applied:  simResult.Completed,
		Duration: o.clk.Now().Sub(stageStart),
	}
	if !simResult.Completed {
		hp.TypingSimulation.Detail = "simulation cut short"
	}
	metrics.PipelineStageDuration.WithLabelValues("typing_simulation").Observe(hp.TypingSimulation.Duration.Seconds())
}

// finalize persists the message, then announces it on the conversation
// channel and mirrors it on the widget channel. Persist failure means no
// broadcast at all.
func (o *Orchestrator) finalize(ctx context.Context, input *Input, completion *provider.Completion, result *Result) error {
	msg, err := o.store.CreateMessage(ctx, store.CreateMessageInput{
		ConversationID: input.ConversationID,
		SenderType:     "ai",
		SenderID:       AISenderID,
		Content:        result.Response,
		Metadata: store.Metadata{
			Confidence:       result.Confidence,
			Model:            completion.Model,
			TokensUsed:       completion.TokensUsed,
			HumanizedApplied: result.HumanLikeProcessing.BypassReason == "",
			TyposInjected:    len(result.HumanLikeProcessing.Corrections),
		},
	})
	if err != nil {
		return err
	}
	result.MessageID = msg.ID

	if channel, err := realtime.ConversationChannel(input.OrganizationID, input.ConversationID); err == nil {
		o.broadcaster.Broadcast(ctx, channel, realtime.EventMessageCreated, msg)
	}
	if channel, err := realtime.WidgetChannel(input.OrganizationID, input.ConversationID); err == nil {
		o.broadcaster.Broadcast(ctx, channel, realtime.EventMessageCreated, msg)
	}
	return nil
}

func (o *Orchestrator) broadcastHandover(ctx context.Context, input *Input, reason string) {
	channel, err := realtime.ConversationChannel(input.OrganizationID, input.ConversationID)
	if err != nil {
		return
	}
	o.broadcaster.Broadcast(ctx, channel, realtime.EventAIHandover, map[string]interface{}{
		"conversationId": input.ConversationID,
		"reason":         reason,
	})
}

// runStage runs a pure stage and fills its record.
func runStage[T any](clk clock.Clock, stage string, rec *StageRecord, fn func() T) T {
	stageStart := clk.Now()
	out := fn()
	rec.Applied = true
	rec.Duration = clk.Now().Sub(stageStart)
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(rec.Duration.Seconds())
	return out
}

// guarded runs a text transformation stage, recovering from panics so a
// single stage cannot take the pipeline down.
func (o *Orchestrator) guarded(stage string, rec *StageRecord, in string, fn func(string) string) (out string) {
	stageStart := o.clk.Now()
	out = in
	defer func() {
		rec.Duration = o.clk.Now().Sub(stageStart)
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(rec.Duration.Seconds())
		if r := recover(); r != nil {
			o.logger.Error("stage panicked, continuing with pre-stage text", map[string]interface{}{
				"stage": stage,
				"panic": fmt.Sprint(r),
			})
			rec.Applied = false
			rec.Detail = fmt.Sprintf("stage error: %v", r)
			out = in
		}
	}()
	out = fn(in)
	rec.Applied = true
	if out != in {
		rec.Detail = "content modified"
	}
	return out
}

func (o *Orchestrator) record(outcome string, duration time.Duration) {
	metrics.PipelineResults.WithLabelValues(outcome).Inc()
	if o.obs != nil {
		o.obs.RecordPipelineProcessed(context.Background(), outcome)
		o.obs.RecordPipelineDuration(context.Background(), duration, outcome)
	}
}

// shouldBypass decides whether humanization is skipped. A zero or negative
// time budget always bypasses.
func shouldBypass(elapsed time.Duration, tokens int, opts Options) (bool, string) {
	if opts.MaxProcessingTime <= 0 || elapsed > opts.MaxProcessingTime {
		return true, fmt.Sprintf("processing time budget exceeded (%s of %s)", elapsed, opts.MaxProcessingTime)
	}
	if opts.MaxTokens > 0 && tokens > opts.MaxTokens {
		return true, fmt.Sprintf("token budget exceeded (%d of %d)", tokens, opts.MaxTokens)
	}
	return false, ""
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
