package pipeline

import "strings"

// Phrases signalling the model is out of its depth. Their presence lowers
// confidence and triggers escalation.
var escalationPhrases = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i cannot help",
	"i can't help",
	"contact support",
	"speak to a human",
	"talk to an agent",
	"human agent",
	"escalate",
}

var genericPhrases = []string{
	"is there anything else",
	"please let me know",
	"i understand your concern",
	"thank you for reaching out",
}

// scoreConfidence is a deterministic heuristic: start high, penalize very
// short or very long replies, escalation language and generic filler. Result
// is clamped to [0.1, 0.99].
func scoreConfidence(response string) (float64, string) {
	lower := strings.ToLower(response)
	score := 0.85
	reason := ""

	words := len(strings.Fields(response))
	if words < 5 {
		score -= 0.25
	} else if words > 200 {
		score -= 0.1
	}

	for _, phrase := range escalationPhrases {
		if strings.Contains(lower, phrase) {
			score -= 0.3
			reason = "response contains escalation language: " + phrase
			break
		}
	}

	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			score -= 0.05
		}
	}

	return clampConfidence(score), reason
}

func clampConfidence(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
