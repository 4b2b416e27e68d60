package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{
			name: "collapses horizontal whitespace",
			in:   "05/01/2024    SWIGGY\t\t100.00",
			want: "05/01/2024 SWIGGY 100.00",
		},
		{
			name: "normalizes line endings and blank lines",
			in:   "line one\r\n\r\n\r\n\r\nline two\r\n",
			want: "line one\n\nline two",
		},
		{
			name: "trims lines",
			in:   "   header   \n   row   ",
			want: "header\nrow",
		},
		{
			name: "drops control characters",
			in:   "UPI\x00 payment\x1b",
			want: "UPI payment",
		},
		{
			name:     "truncates to limit",
			in:       "abcdefghij",
			maxChars: 4,
			want:     "abcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in, tt.maxChars); got != tt.want {
				t.Errorf("NormalizeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeText_DefaultLimitKeepsRunesIntact(t *testing.T) {
	in := strings.Repeat("₹", DefaultMaxPromptChars+100)

	got := NormalizeText(in, 0)

	if !utf8.ValidString(got) {
		t.Fatal("result is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != DefaultMaxPromptChars {
		t.Errorf("rune count = %d, want %d", n, DefaultMaxPromptChars)
	}
}
