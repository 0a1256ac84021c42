// Package analysis scores inbound customer messages and derives the tone an
// assistant reply should take. Everything here is pure: identical inputs
// always produce identical outputs, with no I/O and no randomness.
package analysis

import (
	"regexp"
	"strings"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// SentimentAnalysis is a pure computed value with no persisted identity.
type SentimentAnalysis struct {
	Sentiment  Sentiment  `json:"sentiment"`
	Urgency    Urgency    `json:"urgency"`
	Complexity Complexity `json:"complexity"`
}

var negativeWords = []string{
	"angry", "awful", "broken", "cancel", "charged", "complaint", "disappointed",
	"error", "failed", "frustrated", "horrible", "issue", "problem", "refund",
	"ridiculous", "terrible", "twice", "unacceptable", "worst", "wrong",
}

var positiveWords = []string{
	"amazing", "appreciate", "awesome", "excellent", "fantastic", "glad",
	"great", "happy", "helpful", "love", "perfect", "thank", "thanks", "wonderful",
}

var urgentWords = []string{
	"asap", "critical", "emergency", "immediately", "now", "urgent", "urgently",
}

// Billing problems escalate urgency even without explicit urgency vocabulary.
var billingWords = []string{
	"bill", "billing", "charge", "charged", "invoice", "overcharged", "payment", "refund",
}

var technicalWords = []string{
	"api", "certificate", "database", "endpoint", "integration", "oauth",
	"sdk", "server", "ssl", "timeout", "token", "webhook",
}

var (
	urlPattern  = regexp.MustCompile(`https?://\S+`)
	codePattern = regexp.MustCompile("`[^`]+`|\\{|\\}|\\b[a-z]+_[a-z]+\\(")
)

// Analyze scores a message's sentiment, urgency, and complexity. History is
// optional; a long back-and-forth raises urgency (the customer has already
// waited through several exchanges).
func Analyze(text string, history []string) SentimentAnalysis {
	lower := strings.ToLower(text)

	return SentimentAnalysis{
		Sentiment:  scoreSentiment(lower),
		Urgency:    scoreUrgency(text, lower, history),
		Complexity: scoreComplexity(text, lower),
	}
}

func scoreSentiment(lower string) Sentiment {
	neg := countMatches(lower, negativeWords)
	pos := countMatches(lower, positiveWords)

	switch {
	case neg > pos:
		return SentimentNegative
	case pos > neg:
		return SentimentPositive
	default:
		return SentimentNeutral
	}
}

func scoreUrgency(text, lower string, history []string) Urgency {
	score := 0

	score += 2 * countMatches(lower, urgentWords)
	score += countMatches(lower, billingWords)

	if strings.Count(text, "!") >= 2 {
		score += 2
	} else if strings.Contains(text, "!") {
		score++
	}
	if hasShoutedWord(text) {
		score++
	}
	// A customer deep into an exchange has been waiting.
	if len(history) >= 6 {
		score++
	}

	switch {
	case score >= 6:
		return UrgencyCritical
	case score >= 4:
		return UrgencyHigh
	case score >= 2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func scoreComplexity(text, lower string) Complexity {
	score := 0

	words := len(strings.Fields(text))
	switch {
	case words > 100:
		score += 2
	case words > 40:
		score++
	}

	if sentences := countSentences(text); sentences > 5 {
		score++
	}

	if tech := countMatches(lower, technicalWords); tech >= 2 {
		score += 2
	} else if tech == 1 {
		score++
	}

	if urlPattern.MatchString(text) {
		score += 2
	}
	if codePattern.MatchString(text) {
		score++
	}

	switch {
	case score >= 5:
		return ComplexityComplex
	case score >= 2:
		return ComplexityMedium
	default:
		return ComplexitySimple
	}
}

func countMatches(lower string, vocabulary []string) int {
	count := 0
	for _, w := range vocabulary {
		if strings.Contains(lower, w) {
			count++
		}
	}
	return count
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '?' || r == '!' {
			count++
		}
	}
	return count
}

func hasShoutedWord(text string) bool {
	for _, word := range strings.Fields(text) {
		letters := 0
		upper := 0
		for _, r := range word {
			if r >= 'A' && r <= 'Z' {
				upper++
				letters++
			} else if r >= 'a' && r <= 'z' {
				letters++
			}
		}
		if letters >= 3 && upper == letters {
			return true
		}
	}
	return false
}
