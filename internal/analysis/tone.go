package analysis

import (
	"fmt"
	"strings"
)

// CustomerInfo is the slice of customer context that feeds tone selection.
type CustomerInfo struct {
	Name              string  `json:"name,omitempty"`
	Tier              string  `json:"tier,omitempty"`
	PriorInteractions int     `json:"priorInteractions,omitempty"`
	Satisfaction      float64 `json:"satisfaction,omitempty"`
}

// Example is a few-shot exchange included in the completion prompt.
type Example struct {
	Customer  string `json:"customer"`
	Assistant string `json:"assistant"`
}

// ToneContext is consumed immediately by the completion call; it is not
// persisted. AdaptationReason exists for audit and debugging, not behavior.
type ToneContext struct {
	Tone             string    `json:"tone"`
	SystemPrompt     string    `json:"systemPrompt"`
	Examples         []Example `json:"examples"`
	AdaptationReason string    `json:"adaptationReason"`
}

var toneExamples = map[string][]Example{
	"empathetic": {
		{
			Customer:  "I was charged twice this month and nobody is helping me.",
			Assistant: "I'm really sorry about the double charge — that's frustrating, and it's on us to fix. Let me sort this out for you right away.",
		},
	},
	"warm": {
		{
			Customer:  "Hey, quick question about my plan.",
			Assistant: "Of course, happy to help! What would you like to know?",
		},
	},
	"professional": {
		{
			Customer:  "Could you confirm my subscription renewal date?",
			Assistant: "Certainly. Your subscription renews on the date shown in your billing settings; I can confirm the exact date for you now.",
		},
	},
}

// BuildToneContext deterministically maps persona, sentiment, and customer
// context to a tone label and system prompt. Identical inputs produce
// byte-identical output.
func BuildToneContext(persona string, s SentimentAnalysis, customer CustomerInfo, history []string) ToneContext {
	tone := baseTone(persona)
	var reasons []string

	if s.Sentiment == SentimentNegative {
		tone = "empathetic"
		reasons = append(reasons, "negative sentiment calls for an empathetic, apologetic register")
	}
	if s.Urgency == UrgencyHigh || s.Urgency == UrgencyCritical {
		reasons = append(reasons, fmt.Sprintf("%s urgency: acknowledge quickly and commit to concrete next steps", s.Urgency))
	}
	if customer.Tier == "vip" || customer.Tier == "enterprise" {
		reasons = append(reasons, fmt.Sprintf("%s tier customer: extra care and ownership", customer.Tier))
	}
	if customer.PriorInteractions >= 3 {
		reasons = append(reasons, "repeat contact: avoid re-asking for details already provided")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("default %s tone from the %s persona", tone, personaLabel(persona)))
	}

	return ToneContext{
		Tone:             tone,
		SystemPrompt:     buildSystemPrompt(persona, tone, s, customer, history),
		Examples:         toneExamples[tone],
		AdaptationReason: strings.Join(reasons, "; "),
	}
}

func baseTone(persona string) string {
	switch persona {
	case "friendly", "casual":
		return "warm"
	default:
		return "professional"
	}
}

func personaLabel(persona string) string {
	if persona == "" {
		return "default"
	}
	return persona
}

func buildSystemPrompt(persona, tone string, s SentimentAnalysis, customer CustomerInfo, history []string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("You are a customer support agent with a %s persona. Respond in a %s tone.", personaLabel(persona), tone))

	switch s.Sentiment {
	case SentimentNegative:
		parts = append(parts, "The customer is upset. Acknowledge the problem first, apologize once, and focus on resolution.")
	case SentimentPositive:
		parts = append(parts, "The customer is in a good mood. Keep the reply light and direct.")
	}

	if s.Urgency == UrgencyHigh || s.Urgency == UrgencyCritical {
		parts = append(parts, "Treat this as time-sensitive. Lead with what happens next and when.")
	}

	if s.Complexity == ComplexityComplex {
		parts = append(parts, "The question is technical. Answer precisely and avoid oversimplifying.")
	}

	if customer.Name != "" {
		parts = append(parts, fmt.Sprintf("The customer's name is %s.", customer.Name))
	}
	if customer.Tier != "" {
		parts = append(parts, fmt.Sprintf("Customer tier: %s.", customer.Tier))
	}
	if len(history) > 0 {
		parts = append(parts, fmt.Sprintf("This conversation has %d prior messages; do not repeat information already given.", len(history)))
	}

	parts = append(parts, "Keep the reply concise. Never invent account details.")

	return strings.Join(parts, "\n")
}
