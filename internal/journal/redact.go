package journal

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	digitPattern = regexp.MustCompile(`(?:\pN[ \-()]*){7,}\pN`)
)

// Redact masks patterns that commonly carry contact or account data
// before utterance text is persisted. Digit runs match any script's
// decimal digits, not just ASCII.
func Redact(input string) (redacted string, changed bool) {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	changed = out != input

	next := digitPattern.ReplaceAllString(out, "[REDACTED_NUMBER]")
	changed = changed || next != out

	return next, changed
}
