package humanize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFilterPhrases_ReplacesStockPhrases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"apology boilerplate",
			"I apologize for any inconvenience this may have caused.",
			"Sorry about that.",
		},
		{
			"closing boilerplate",
			"Is there anything else I can assist you with?",
			"Anything else I can help with?",
		},
		{
			"utilize",
			"You can utilize the dashboard to check this.",
			"You can use the dashboard to check this.",
		},
		{
			"mid-sentence phrase keeps surroundings",
			"Thanks! Please do not hesitate to reach out if anything breaks.",
			"Thanks! Feel free to reach out if anything breaks.",
		},
		{
			"nothing to replace",
			"Your refund was issued this morning.",
			"Your refund was issued this morning.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterPhrases(tt.in))
		})
	}
}

func TestFilterPhrases_CaseInsensitive(t *testing.T) {
	out := FilterPhrases("THANK YOU FOR REACHING OUT about the billing issue.")
	assert.Equal(t, "Thanks for getting in touch about the billing issue.", out)
}

// Running the filter twice must change nothing the second time, for any
// input: replacements never produce text containing another trigger phrase.
func TestFilterPhrases_FixedPoint(t *testing.T) {
	inputs := []string{
		"I apologize for any inconvenience. Please do not hesitate to reach out at your earliest convenience.",
		"I would be more than happy to assist you with this. We appreciate your patience.",
		"Thank you for contacting us! As per our conversation, I will utilize the logs.",
		"No stock phrases here at all.",
		"",
	}

	for _, in := range inputs {
		once := FilterPhrases(in)
		twice := FilterPhrases(once)
		assert.Equal(t, once, twice, "input %q not a fixed point", in)
	}
}

// Lowercasing can shrink a rune's byte width (U+0130 'İ' becomes a one-byte
// 'i'), so matching must not carry byte offsets from a folded copy back into
// the original.
func TestFilterPhrases_MultibyteCaseFolding(t *testing.T) {
	out := FilterPhrases("İstanbul support will utilize the new dashboard.")
	assert.Equal(t, "İstanbul support will use the new dashboard.", out)
	assert.True(t, utf8.ValidString(out))

	out = FilterPhrases("Ürün team asked me to utilize the logs. Do not hesitate to ping them.")
	assert.Equal(t, "Ürün team asked me to use the logs. Feel free to ping them.", out)
	assert.True(t, utf8.ValidString(out))
}

func TestFilterPhrases_NoDanglingPunctuation(t *testing.T) {
	out := FilterPhrases("I would be happy to help. Is there anything else I can assist you with ?")
	assert.False(t, strings.Contains(out, " ?"))
	assert.False(t, strings.Contains(out, "  "))
}
