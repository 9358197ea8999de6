package tokens

import (
	"strings"
	"testing"
)

func TestCount(t *testing.T) {
	t.Parallel()

	if got := Count(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	short := Count("hello")
	long := Count(strings.Repeat("hello world ", 50))
	if short <= 0 || long <= short {
		t.Fatalf("expected longer text to have more tokens: short=%d long=%d", short, long)
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect int
	}{
		{name: "blank", input: "   ", expect: 0},
		{name: "single rune", input: "a", expect: 1},
		{name: "words dominate", input: "a b c d e", expect: 5},
		{name: "runes dominate", input: strings.Repeat("x", 40), expect: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tt.input); got != tt.expect {
				t.Fatalf("expected %d, got %d", tt.expect, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("token ", 200)
	cut := Truncate(text, 10)
	if Count(cut) > 10 {
		t.Fatalf("expected at most 10 tokens, got %d", Count(cut))
	}
	if !strings.HasPrefix(text, cut) {
		t.Fatalf("expected truncated text to be a prefix")
	}
	if Truncate("short", 100) != "short" {
		t.Fatalf("expected short text to be returned unchanged")
	}
	if Truncate("anything", 0) != "" {
		t.Fatalf("expected empty result for zero budget")
	}
}
