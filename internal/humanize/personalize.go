package humanize

import (
	"fmt"
	"strings"
)

// PersonalizeContext carries the customer facts a reply can be tailored
// with. Absent fields are simply omitted; no placeholder text is ever
// inserted.
type PersonalizeContext struct {
	TimeOfDay         string // "morning", "afternoon", "evening"
	CustomerName      string
	Tier              string
	PriorInteractions int
}

// Personalize prepends a context-appropriate greeting and, for long-standing
// customers, a closing touch. Deterministic for identical inputs.
func Personalize(text string, ctx PersonalizeContext) string {
	out := text

	if greeting := buildGreeting(ctx); greeting != "" && !startsWithGreeting(out) {
		out = greeting + " " + lowerFirstIfSentence(out)
	}

	if isLoyal(ctx) && !strings.Contains(out, "sticking with us") {
		out = strings.TrimRight(out, " ") + " Thanks for sticking with us."
	}

	return out
}

func buildGreeting(ctx PersonalizeContext) string {
	var opening string
	switch ctx.TimeOfDay {
	case "morning":
		opening = "Good morning"
	case "afternoon":
		opening = "Good afternoon"
	case "evening":
		opening = "Good evening"
	default:
		if ctx.CustomerName == "" {
			return ""
		}
		opening = "Hi"
	}

	if ctx.CustomerName != "" {
		return fmt.Sprintf("%s %s —", opening, ctx.CustomerName)
	}
	return opening + " —"
}

func isLoyal(ctx PersonalizeContext) bool {
	return (ctx.Tier == "vip" || ctx.Tier == "enterprise") && ctx.PriorInteractions >= 5
}

var greetingPrefixes = []string{"hi ", "hi,", "hey ", "hey,", "hello", "good morning", "good afternoon", "good evening"}

func startsWithGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range greetingPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// lowerFirstIfSentence lowercases the original opening word when a greeting
// is glued in front, unless the word is a proper capital like "I".
func lowerFirstIfSentence(text string) string {
	if text == "" {
		return text
	}
	first := strings.Fields(text)
	if len(first) > 0 && (first[0] == "I" || first[0] == "I'm" || first[0] == "I'll" || first[0] == "I'd" || first[0] == "I've") {
		return text
	}
	runes := []rune(text)
	if runes[0] >= 'A' && runes[0] <= 'Z' {
		runes[0] = runes[0] + ('a' - 'A')
	}
	return string(runes)
}
