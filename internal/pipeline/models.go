// Package pipeline orchestrates the full response flow: sentiment, tone,
// completion, humanization, typing simulation, persistence and broadcast.
package pipeline

import (
	"time"

	"support-engine/internal/analysis"
	"support-engine/internal/humanize"
)

// Options tunes one pipeline run. Callers usually start from
// Orchestrator.DefaultOptions and override fields; the orchestrator honors
// the values exactly as given, so MaxProcessingTime of zero means a zero
// time budget, not "use the default".
type Options struct {
	SkipFilter           bool
	SkipPersonalize      bool
	SkipTypos            bool
	SkipTypingSimulation bool
	TypoProbability      float64
	ConfidenceThreshold  float64
	MaxProcessingTime    time.Duration
	MaxTokens            int
}

// Input is the immutable request for one response generation. The pipeline
// never mutates it.
type Input struct {
	OrganizationID string
	ConversationID string
	Message        string
	History        []string
	Persona        string
	Customer       analysis.CustomerInfo
	Options        Options
}

// StageRecord notes whether one humanization stage ran and what it did.
type StageRecord struct {
	Applied  bool          `json:"applied"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
}

// HumanLikeProcessing is the per-stage audit trail attached to a Result.
type HumanLikeProcessing struct {
	SentimentAnalysis StageRecord                `json:"sentimentAnalysis"`
	ToneAdaptation    StageRecord                `json:"toneAdaptation"`
	PhraseFiltering   StageRecord                `json:"phraseFiltering"`
	Personalization   StageRecord                `json:"personalization"`
	TypoInjection     StageRecord                `json:"typoInjection"`
	TypingSimulation  StageRecord                `json:"typingSimulation"`
	Corrections       []humanize.Correction      `json:"corrections,omitempty"`
	BypassReason      string                     `json:"bypassReason,omitempty"`
	Sentiment         analysis.SentimentAnalysis `json:"sentiment"`
	Tone              string                     `json:"tone"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Success             bool
	Response            string
	MessageID           string
	Confidence          float64
	Escalated           bool
	EscalationReason    string
	TokensUsed          int
	ProcessingTime      time.Duration
	HumanLikeProcessing HumanLikeProcessing
	Error               error
}
