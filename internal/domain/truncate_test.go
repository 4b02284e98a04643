package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateSingleLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantLen int
		wantCut bool
	}{
		{name: "short string untouched", input: "A study of reviews", wantLen: 18, wantCut: false},
		{name: "exact limit untouched", input: strings.Repeat("x", MaxSingleLineChars), wantLen: MaxSingleLineChars, wantCut: false},
		{name: "over limit cut", input: strings.Repeat("x", MaxSingleLineChars+1000), wantLen: MaxSingleLineChars, wantCut: true},
		{name: "empty", input: "", wantLen: 0, wantCut: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, cut := TruncateSingleLine(tt.input)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
			if cut != tt.wantCut {
				t.Errorf("cut = %v, want %v", cut, tt.wantCut)
			}
		})
	}
}

func TestTruncateSingleLine_CountsRunes(t *testing.T) {
	t.Parallel()

	// Multi-byte runes: the limit counts characters, not bytes.
	input := strings.Repeat("é", MaxSingleLineChars+5)
	got, cut := TruncateSingleLine(input)
	if !cut {
		t.Fatal("expected truncation")
	}
	if n := utf8.RuneCountInString(got); n != MaxSingleLineChars {
		t.Errorf("rune count = %d, want %d", n, MaxSingleLineChars)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
}

func TestTruncateMultiLine(t *testing.T) {
	t.Parallel()

	got, cut := TruncateMultiLine(strings.Repeat("r", MaxMultiLineChars+1))
	if !cut {
		t.Fatal("expected truncation")
	}
	if len(got) != MaxMultiLineChars {
		t.Errorf("len = %d, want %d", len(got), MaxMultiLineChars)
	}

	if _, cut := TruncateMultiLine("fine"); cut {
		t.Error("short text should not be cut")
	}
}
