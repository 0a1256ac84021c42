package typingsim

import (
	"context"
	"time"

	"support-engine/internal/common/clock"
	"support-engine/internal/common/logger"
)

// Phase labels the stage a progress update belongs to.
type Phase string

const (
	PhaseReading    Phase = "reading"
	PhaseThinking   Phase = "thinking"
	PhaseTyping     Phase = "typing"
	PhasePausing    Phase = "pausing"
	PhaseCorrecting Phase = "correcting"
)

// Progress is one tick of the playback, carrying the partial content so far.
type Progress struct {
	Content    string
	Percentage float64
	Phase      Phase
}

// Result reports how the playback ended. Completed is false when the
// context was cancelled mid-run; the caller still delivers the full text.
type Result struct {
	Completed     bool
	TotalDuration time.Duration
}

// Simulator plays a Timings schedule against an injected clock. All waits
// go through the clock so tests can advance time manually.
type Simulator struct {
	clk clock.Clock
	log logger.Logger
}

func NewSimulator(clk clock.Clock, log logger.Logger) *Simulator {
	return &Simulator{clk: clk, log: log}
}

// Simulate walks the burst schedule, invoking onProgress after every phase
// transition and burst. onProgress must not block: the progress path on the
// other side is a non-blocking publish, so a direct call is safe here.
// Cancellation returns early with Completed=false and no error.
func (s *Simulator) Simulate(ctx context.Context, text string, t Timings, onProgress func(Progress)) (Result, error) {
	start := s.clk.Now()
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	emit(Progress{Phase: PhaseReading})
	if !s.wait(ctx, t.ReadingTime) {
		return s.aborted(start), nil
	}

	emit(Progress{Phase: PhaseThinking})
	if !s.wait(ctx, t.ThinkingPause) {
		return s.aborted(start), nil
	}

	runes := []rune(text)
	total := len(runes)
	typed := 0
	corrected := t.CorrectionPause == 0

	for i, b := range t.BurstPatterns {
		delay := time.Duration(float64(b.Delay) * t.EmotionalModifier)
		if !s.wait(ctx, delay) {
			return s.aborted(start), nil
		}
		typed += b.CharCount
		if typed > total {
			typed = total
		}
		partial := string(runes[:typed])
		emit(Progress{Content: partial, Percentage: pct(typed, total), Phase: PhaseTyping})

		// One simulated backtrack roughly halfway through longer replies.
		if !corrected && i >= len(t.BurstPatterns)/2 {
			corrected = true
			back := typed - 3
			if back < 0 {
				back = 0
			}
			emit(Progress{Content: string(runes[:back]), Percentage: pct(back, total), Phase: PhaseCorrecting})
			if !s.wait(ctx, t.CorrectionPause) {
				return s.aborted(start), nil
			}
			emit(Progress{Content: partial, Percentage: pct(typed, total), Phase: PhaseTyping})
		}

		if typed < total && endsSentence(runes[typed-1]) {
			emit(Progress{Content: partial, Percentage: pct(typed, total), Phase: PhasePausing})
			if !s.wait(ctx, t.SentencePause) {
				return s.aborted(start), nil
			}
		}
	}

	emit(Progress{Content: text, Percentage: 100, Phase: PhaseTyping})
	return Result{Completed: true, TotalDuration: s.clk.Now().Sub(start)}, nil
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-s.clk.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Simulator) aborted(start time.Time) Result {
	return Result{Completed: false, TotalDuration: s.clk.Now().Sub(start)}
}

func pct(typed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(typed) / float64(total) * 100
}

func endsSentence(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
