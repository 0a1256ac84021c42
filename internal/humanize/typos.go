package humanize

import (
	"math/rand"
	"strings"
	"unicode"
)

// CorrectionType tags what kind of corruption was applied at a position.
type CorrectionType string

const (
	CorrectionTransposition CorrectionType = "transposition"
	CorrectionOmission      CorrectionType = "omission"
	CorrectionDuplication   CorrectionType = "duplication"
)

// Correction records one injected typo for later analysis or replay.
type Correction struct {
	Type     CorrectionType `json:"type"`
	Position int            `json:"position"` // rune offset in the output text
}

// InjectTypos probabilistically corrupts a fraction of words. Probability 0
// is the disable switch: the text comes back unchanged with no corrections.
// With preserveReadability set, first and last characters of a word are
// never touched and words containing digits are skipped.
func InjectTypos(text string, probability float64, preserveReadability bool, rng *rand.Rand) (string, []Correction) {
	corrections := []Correction{}
	if probability <= 0 || rng == nil || text == "" {
		return text, corrections
	}
	if probability > 1 {
		probability = 1
	}

	words := strings.Split(text, " ")
	var b strings.Builder
	pos := 0 // rune offset in output

	for i, word := range words {
		if i > 0 {
			b.WriteByte(' ')
			pos++
		}

		runes := []rune(word)
		if !eligible(runes, preserveReadability) || rng.Float64() >= probability {
			b.WriteString(word)
			pos += len(runes)
			continue
		}

		mutated, c := corrupt(runes, preserveReadability, rng)
		c.Position += pos
		corrections = append(corrections, c)
		b.WriteString(string(mutated))
		pos += len(mutated)
	}

	return b.String(), corrections
}

func eligible(runes []rune, preserveReadability bool) bool {
	if len(runes) < 4 {
		return false
	}
	if !preserveReadability {
		return true
	}
	for _, r := range runes {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// corrupt applies one mutation to a word and reports the rune index within
// the word where it happened.
func corrupt(runes []rune, preserveReadability bool, rng *rand.Rand) ([]rune, Correction) {
	lo, hi := 0, len(runes)
	if preserveReadability {
		lo, hi = 1, len(runes)-1
	}

	switch CorrectionType([]CorrectionType{CorrectionTransposition, CorrectionOmission, CorrectionDuplication}[rng.Intn(3)]) {
	case CorrectionTransposition:
		i := lo + rng.Intn(hi-lo-1)
		runes[i], runes[i+1] = runes[i+1], runes[i]
		return runes, Correction{Type: CorrectionTransposition, Position: i}
	case CorrectionOmission:
		i := lo + rng.Intn(hi-lo)
		out := append(append([]rune{}, runes[:i]...), runes[i+1:]...)
		return out, Correction{Type: CorrectionOmission, Position: i}
	default:
		i := lo + rng.Intn(hi-lo)
		out := append(append(append([]rune{}, runes[:i+1]...), runes[i]), runes[i+1:]...)
		return out, Correction{Type: CorrectionDuplication, Position: i}
	}
}
