package domain

// Hard field limits of the RQC schema, enforced at normalization time.
// Oversized values are cut, oversized lists dropped from the tail.
// MaxListEntries applies to reviews and editor assignments; author
// lists get their own, larger cap.
const (
	MaxSingleLineChars = 2000
	MaxMultiLineChars  = 200000
	MaxListEntries     = 20
	MaxAuthors         = 200
)

// TruncateSingleLine caps s at the single-line field limit and reports
// whether anything was cut. Limits count characters, not bytes.
func TruncateSingleLine(s string) (string, bool) {
	return truncateRunes(s, MaxSingleLineChars)
}

// TruncateMultiLine caps s at the multi-line field limit.
func TruncateMultiLine(s string) (string, bool) {
	return truncateRunes(s, MaxMultiLineChars)
}

func truncateRunes(s string, limit int) (string, bool) {
	if len(s) <= limit {
		// Byte length bounds rune length.
		return s, false
	}
	r := []rune(s)
	if len(r) <= limit {
		return s, false
	}
	return string(r[:limit]), true
}
