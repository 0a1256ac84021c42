// cmd/support-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"support-engine/internal/analysis"
	"support-engine/internal/commands"
	"support-engine/internal/common/clock"
	"support-engine/internal/common/config"
	"support-engine/internal/common/database"
	stderrors "support-engine/internal/common/errors"
	"support-engine/internal/common/logger"
	"support-engine/internal/common/observability"
	"support-engine/internal/pipeline"
	"support-engine/internal/presence"
	"support-engine/internal/provider"
	"support-engine/internal/realtime"
	"support-engine/internal/store"
	"support-engine/internal/typingsim"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting support engine...",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("support-engine")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewReal()

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Realtime layer ---
	transport := realtime.NewRedisTransport(redisClient.GetClient())
	registry := realtime.NewRegistry(transport, clk, realtime.RegistryConfig{
		SweepInterval: config.GetDuration(cfg.Channels.SweepInterval),
		IdleTimeout:   config.GetDuration(cfg.Channels.IdleTimeout),
	}, log)
	registry.StartSweeper(ctx)

	broadcaster := realtime.NewBroadcaster(registry, clk, realtime.BroadcasterConfig{
		SubscribeTimeout: config.GetDuration(cfg.Channels.SubscribeTimeout),
	}, log)

	// --- Presence & commands ---
	orgID := os.Getenv("ORGANIZATION_ID")
	if orgID == "" {
		orgID = "default"
	}
	binder := presence.NewBinder(clk, presence.TrackerConfig{
		Timeout: config.GetDuration(cfg.Presence.TypingTimeout),
	}, log, broadcaster, orgID)
	binder.Tracker().StartExpiry(ctx)

	roster := presence.NewRoster(clk)
	releaseRoster, err := binder.BindRoster(ctx, roster)
	if err != nil {
		zapLog.Fatal("presence roster binding failed", zap.Error(err))
	}
	defer releaseRoster()
	defer binder.ReleaseAll()

	bus := commands.NewBus(log)
	chords := commands.NewChordResolver(clk, commands.ChordConfig{
		Timeout: config.GetDuration(cfg.Presence.ChordTimeout),
	}, bus)
	chords.StartExpiry(ctx)

	// --- Response pipeline ---
	completer := provider.NewClient(cfg.Completion, log)
	messageStore := store.NewClient(cfg.API, log)
	simulator := typingsim.NewSimulator(clk, log)
	orchestrator := pipeline.NewOrchestrator(
		completer, messageStore, broadcaster, simulator,
		clk, cfg.Pipeline, obs, log, nil,
	)
	debouncer := pipeline.NewDebouncer(clk, config.GetDuration(cfg.Presence.SuggestionDebounce))

	zapLog.Info("All components initialized")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := redisClient.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/api/respond", respondHandler(orchestrator, binder, log))
		http.HandleFunc("/api/suggest", suggestHandler(orchestrator, debouncer, binder, log))
		http.HandleFunc("/api/presence", presenceHandler(roster))
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.ListenAddress))
		if err := http.ListenAndServe(cfg.Metrics.ListenAddress, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	cancel()
	registry.Destroy()
	zapLog.Info("Shutdown complete")
}

type respondRequest struct {
	OrganizationID string                `json:"organizationId"`
	ConversationID string                `json:"conversationId"`
	Message        string                `json:"message"`
	History        []string              `json:"history"`
	Persona        string                `json:"persona"`
	Customer       analysis.CustomerInfo `json:"customer"`
}

func decodeRespondRequest(r *http.Request) (*respondRequest, error) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.OrganizationID == "" || req.ConversationID == "" || req.Message == "" {
		return nil, fmt.Errorf("organizationId, conversationId and message are required")
	}
	return &req, nil
}

func (r *respondRequest) toInput(opts pipeline.Options) *pipeline.Input {
	return &pipeline.Input{
		OrganizationID: r.OrganizationID,
		ConversationID: r.ConversationID,
		Message:        r.Message,
		History:        r.History,
		Persona:        r.Persona,
		Customer:       r.Customer,
		Options:        opts,
	}
}

// respondHandler runs the pipeline synchronously and returns the result. The
// conversation binds to the typing channel on first contact so inbound typing
// events start feeding the tracker.
func respondHandler(orchestrator *pipeline.Orchestrator, binder *presence.Binder, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := decodeRespondRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := binder.EnsureBound(r.Context(), req.ConversationID); err != nil {
			log.Warn("conversation binding failed", map[string]interface{}{
				"conversationId": req.ConversationID,
				"error":          err.Error(),
			})
		}

		result, err := orchestrator.Execute(r.Context(), req.toInput(orchestrator.DefaultOptions()))
		if err != nil {
			log.Error("respond failed", map[string]interface{}{"error": err.Error()})
			writeCompletionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messageId":  result.MessageID,
			"response":   result.Response,
			"confidence": result.Confidence,
			"escalated":  result.Escalated,
			"processing": result.HumanLikeProcessing,
			"tokensUsed": result.TokensUsed,
			"durationMs": result.ProcessingTime.Milliseconds(),
		})
	}
}

// suggestHandler coalesces keystroke-driven triggers and runs the pipeline
// once the conversation goes quiet.
func suggestHandler(orchestrator *pipeline.Orchestrator, debouncer *pipeline.Debouncer, binder *presence.Binder, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := decodeRespondRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := binder.EnsureBound(r.Context(), req.ConversationID); err != nil {
			log.Warn("conversation binding failed", map[string]interface{}{
				"conversationId": req.ConversationID,
				"error":          err.Error(),
			})
		}

		opts := orchestrator.DefaultOptions()
		opts.SkipTypingSimulation = true
		input := req.toInput(opts)
		debouncer.Trigger(req.ConversationID, func() {
			if _, err := orchestrator.Execute(context.Background(), input); err != nil {
				log.Error("suggestion pipeline failed", map[string]interface{}{
					"conversationId": input.ConversationID,
					"error":          err.Error(),
				})
			}
		})
		w.WriteHeader(http.StatusAccepted)
	}
}

// presenceHandler reports every actor the roster currently sees as online or
// away.
func presenceHandler(roster *presence.Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"actors": roster.Online(),
		})
	}
}

// writeCompletionError maps pipeline failures onto the structured error
// taxonomy before they cross the HTTP boundary.
func writeCompletionError(w http.ResponseWriter, err error) {
	var stdErr *stderrors.StandardError
	switch {
	case errors.Is(err, provider.ErrCompletionTimeout):
		stdErr = stderrors.NewCompletionTimeoutError()
	case errors.As(err, &stdErr):
	default:
		stdErr = stderrors.NewCompletionFailedError(err)
	}

	status := http.StatusBadGateway
	if stdErr.Code == stderrors.ErrCodeCompletionTimeout {
		status = http.StatusGatewayTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(stdErr)
}
