// Package humanize applies the transforms that make a generated reply read
// like a person wrote it: stock-phrase filtering, personalization, and
// optional typo injection.
package humanize

import (
	"regexp"
	"strings"
	"unicode"
)

// phraseReplacements maps robotic stock phrases to plainer equivalents.
// Ordered longest-first so overlapping phrases resolve predictably. No
// replacement output contains another trigger phrase, which keeps
// FilterPhrases a fixed point on its own output.
var phraseReplacements = []struct {
	pattern     string
	replacement string
}{
	{"i apologize for any inconvenience this may have caused", "sorry about that"},
	{"i apologize for any inconvenience", "sorry about that"},
	{"we apologize for any inconvenience", "sorry about that"},
	{"is there anything else i can assist you with", "anything else I can help with"},
	{"please do not hesitate to reach out", "feel free to reach out"},
	{"please do not hesitate to", "feel free to"},
	{"do not hesitate to", "feel free to"},
	{"i would be more than happy to", "I'd be glad to"},
	{"i would be happy to", "I'd be glad to"},
	{"we appreciate your patience", "thanks for bearing with us"},
	{"thank you for reaching out to us", "thanks for getting in touch"},
	{"thank you for reaching out", "thanks for getting in touch"},
	{"thank you for contacting us", "thanks for getting in touch"},
	{"at your earliest convenience", "when you get a chance"},
	{"as per our conversation", "as we discussed"},
	{"assist you with", "help you with"},
	{"utilize", "use"},
}

var (
	spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)
	multiSpace       = regexp.MustCompile(`  +`)
)

// FilterPhrases removes robotic stock phrases and lowers formality without
// truncating meaning or leaving dangling punctuation. Running it on its own
// output changes nothing.
func FilterPhrases(text string) string {
	out := text
	for _, r := range phraseReplacements {
		out = replaceFold(out, r.pattern, r.replacement)
	}

	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = multiSpace.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	return capitalizeSentences(out)
}

// replaceFold replaces every case-insensitive occurrence of pattern, keeping
// a leading capital when the original occurrence had one. Matching walks
// runes rather than folded bytes: lowercasing can change a rune's byte width
// (U+0130 shrinks from two bytes to one), so byte offsets into a folded copy
// would slice the original mid-rune.
func replaceFold(text, pattern, replacement string) string {
	runes := []rune(text)
	pat := []rune(pattern)
	if len(pat) == 0 || len(pat) > len(runes) {
		return text
	}

	var b strings.Builder
	start := 0
	for i := 0; i+len(pat) <= len(runes); {
		if !matchesFold(runes[i:i+len(pat)], pat) {
			i++
			continue
		}
		b.WriteString(string(runes[start:i]))

		rep := replacement
		if unicode.IsUpper(runes[i]) {
			rep = upperFirst(replacement)
		}
		b.WriteString(rep)
		i += len(pat)
		start = i
	}
	b.WriteString(string(runes[start:]))
	return b.String()
}

// matchesFold reports whether a rune window equals the lowercase pattern
// under simple case folding. Patterns are already lowercase.
func matchesFold(window, pat []rune) bool {
	for i, r := range pat {
		if unicode.ToLower(window[i]) != r {
			return false
		}
	}
	return true
}

// capitalizeSentences makes sure each sentence still starts with a capital
// after phrase removal shuffled the text around.
func capitalizeSentences(text string) string {
	runes := []rune(text)
	atStart := true
	for i, r := range runes {
		if atStart && unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			atStart = false
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			atStart = true
		} else if !unicode.IsSpace(r) {
			atStart = false
		}
	}
	return string(runes)
}

func upperFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
