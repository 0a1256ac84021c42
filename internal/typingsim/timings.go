// Package typingsim converts a finalized reply into a realistic
// keystroke-timing schedule and plays it back as progressive broadcasts.
package typingsim

import (
	"strings"
	"time"

	"support-engine/internal/analysis"
)

// Profile modulates the schedule: persona sets the base pace, affect and
// complexity stretch or shrink it.
type Profile struct {
	Persona    string
	Sentiment  analysis.Sentiment
	Urgency    analysis.Urgency
	Complexity analysis.Complexity
}

// Burst is a run of characters typed as one motion, followed by a delay.
type Burst struct {
	CharCount int
	Delay     time.Duration
}

// Timings is the full schedule for one outgoing reply. Computed once,
// deterministic for identical inputs.
type Timings struct {
	BurstPatterns     []Burst
	SentencePause     time.Duration
	ThinkingPause     time.Duration
	CorrectionPause   time.Duration
	ReadingTime       time.Duration
	EmotionalModifier float64
}

// TotalDuration is the schedule's nominal playback length.
func (t Timings) TotalDuration() time.Duration {
	total := t.ReadingTime + t.ThinkingPause + t.CorrectionPause
	for _, b := range t.BurstPatterns {
		total += time.Duration(float64(b.Delay) * t.EmotionalModifier)
	}
	return total
}

// CalculateTimings maps a reply and its affect profile to a burst/pause
// schedule. Total duration scales with text length; urgency shortens pauses
// while negative sentiment lengthens the thinking pause.
func CalculateTimings(text string, p Profile) Timings {
	perChar := baseCharDelay(p.Persona)

	modifier := 1.0
	switch p.Urgency {
	case analysis.UrgencyHigh:
		modifier = 0.8
	case analysis.UrgencyCritical:
		modifier = 0.65
	}

	thinking := 900 * time.Millisecond
	if p.Sentiment == analysis.SentimentNegative {
		// A careful reply to an upset customer takes a beat longer.
		thinking = 1400 * time.Millisecond
	}
	if p.Complexity == analysis.ComplexityComplex {
		thinking += 500 * time.Millisecond
	}

	runes := []rune(text)
	var bursts []Burst
	// Burst sizes cycle deterministically so the rhythm is uneven without
	// randomness.
	sizes := []int{14, 9, 17, 12}
	for i, remaining := 0, len(runes); remaining > 0; i++ {
		n := sizes[i%len(sizes)]
		if n > remaining {
			n = remaining
		}
		bursts = append(bursts, Burst{
			CharCount: n,
			Delay:     time.Duration(n) * perChar,
		})
		remaining -= n
	}

	correction := time.Duration(0)
	if len(runes) > 60 {
		correction = 600 * time.Millisecond
	}

	reading := 400*time.Millisecond + time.Duration(len(strings.Fields(text)))*20*time.Millisecond
	if reading > 2*time.Second {
		reading = 2 * time.Second
	}

	return Timings{
		BurstPatterns:     bursts,
		SentencePause:     time.Duration(float64(450*time.Millisecond) * modifier),
		ThinkingPause:     time.Duration(float64(thinking) * modifier),
		CorrectionPause:   correction,
		ReadingTime:       time.Duration(float64(reading) * modifier),
		EmotionalModifier: modifier,
	}
}

func baseCharDelay(persona string) time.Duration {
	switch persona {
	case "friendly", "casual":
		return 38 * time.Millisecond
	case "technical":
		return 50 * time.Millisecond
	default:
		return 45 * time.Millisecond
	}
}
