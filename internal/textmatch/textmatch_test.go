package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  STARBUCKS   #123 ", "starbucks #123"},
		{"Café Rouge", "cafe rouge"},
		{"Crème\tBrûlée", "creme brulee"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "anthropic.com"}, Tokens("ANTHROPIC ANTHROPIC.COM"))
	assert.Equal(t, []string{"sq", "blue", "bottle", "123"}, Tokens("SQ *BLUE BOTTLE #123"))
	assert.Equal(t, []string{"at&t", "bill"}, Tokens("AT&T BILL."))
	assert.Empty(t, Tokens("  *** "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 0.0, Similarity("", "abc"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))

	// 6 edits over 19 runes.
	got := Similarity("starbucks #123", "starbucks store 123")
	assert.InDelta(t, 1-6.0/19.0, got, 1e-9)
}

func TestWindowSimilarity(t *testing.T) {
	full := Similarity("starbucks store 123 seattle wa", "starbucks")
	window := WindowSimilarity("STARBUCKS STORE 123 SEATTLE WA", "Starbucks")
	assert.Greater(t, window, full)
	assert.Equal(t, 1.0, window)

	assert.Less(t, WindowSimilarity("WHOLE FOODS MARKET", "netflix"), 0.5)
}
