package typingsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"support-engine/internal/analysis"
)

func TestCalculateTimings_Deterministic(t *testing.T) {
	profile := Profile{
		Persona:    "friendly",
		Sentiment:  analysis.SentimentNegative,
		Urgency:    analysis.UrgencyMedium,
		Complexity: analysis.ComplexityMedium,
	}
	text := "Sorry about the double charge, let me fix that for you right away."

	first := CalculateTimings(text, profile)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CalculateTimings(text, profile))
	}
}

func TestCalculateTimings_BurstsCoverWholeText(t *testing.T) {
	text := "Let me look into the invoice and get back to you with the details."
	timings := CalculateTimings(text, Profile{Persona: "professional"})

	total := 0
	for _, b := range timings.BurstPatterns {
		assert.Greater(t, b.CharCount, 0)
		assert.Greater(t, b.Delay, time.Duration(0))
		total += b.CharCount
	}
	assert.Equal(t, len([]rune(text)), total)
}

func TestCalculateTimings_UrgencyShortensPauses(t *testing.T) {
	text := "I am on it, give me one moment to check the order status for you."
	calm := CalculateTimings(text, Profile{Urgency: analysis.UrgencyLow})
	rushed := CalculateTimings(text, Profile{Urgency: analysis.UrgencyCritical})

	assert.Less(t, rushed.SentencePause, calm.SentencePause)
	assert.Less(t, rushed.ThinkingPause, calm.ThinkingPause)
	assert.Less(t, rushed.ReadingTime, calm.ReadingTime)
	assert.Less(t, rushed.EmotionalModifier, calm.EmotionalModifier)
	assert.Less(t, rushed.TotalDuration(), calm.TotalDuration())
}

func TestCalculateTimings_NegativeSentimentLengthensThinking(t *testing.T) {
	text := "Sorry about that, checking now."
	neutral := CalculateTimings(text, Profile{Sentiment: analysis.SentimentNeutral})
	upset := CalculateTimings(text, Profile{Sentiment: analysis.SentimentNegative})

	assert.Greater(t, upset.ThinkingPause, neutral.ThinkingPause)
}

func TestCalculateTimings_TotalScalesWithLength(t *testing.T) {
	short := CalculateTimings("Done.", Profile{})
	long := CalculateTimings("Thanks for flagging this. I pulled up the account and the duplicate charge is visible on my end too, so I have gone ahead and started the reversal, which usually lands within three business days.", Profile{})

	assert.Greater(t, long.TotalDuration(), short.TotalDuration())
	assert.Greater(t, long.CorrectionPause, time.Duration(0), "longer replies include a backtrack pause")
	assert.Equal(t, time.Duration(0), short.CorrectionPause)
}

func TestCalculateTimings_PersonaSetsPace(t *testing.T) {
	text := "Checking the deployment logs for you now."
	friendly := CalculateTimings(text, Profile{Persona: "friendly"})
	technical := CalculateTimings(text, Profile{Persona: "technical"})

	assert.Less(t, friendly.TotalDuration(), technical.TotalDuration())
}
