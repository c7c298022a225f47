// Package synth drives the native synthesis engine: it renders segments
// into the engine's tagged wire text, applies per-language text rules,
// and owns voice selection with its fallback ladder.
package synth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vaanilabs/vaani/internal/script"
	"github.com/vaanilabs/vaani/internal/speech"
)

// Per-language replacement rules applied before submission. The voice
// models were trained on precomposed forms, so decomposed sequences the
// host sends verbatim must collapse to the single display codepoint.
var (
	// Assamese: bengali ra and the nukta combinations render as distinct
	// precomposed letters in the assamese repertoire.
	assameseRules = strings.NewReplacer(
		"য়", "য়", // ya + nukta
		"ড়", "ড়", // dda + nukta
		"ঢ়", "ঢ়", // ddha + nukta
		"র", "ৰ", // bengali ra -> assamese ra
	)
	// Malayalam: consonant + virama + ZWJ spells a chillu; the models
	// only know the atomic chillu codepoints.
	malayalamRules = strings.NewReplacer(
		"ര്‍", "ർ",
		"ല്‍", "ൽ",
		"ള്‍", "ൾ",
		"ന്‍", "ൻ",
		"ണ്‍", "ൺ",
		"ക്‍", "ൿ",
	)
	// Marathi: drop the joiner from halant+ZWJ/ZWNJ combinations.
	marathiRules = strings.NewReplacer(
		"्‍", "्",
		"्‌", "्",
	)

	// The wire format to the engine is tag-annotated, so angle brackets
	// in content are always escaped.
	wireEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

func languageRules(lang string) *strings.Replacer {
	switch lang {
	case "as":
		return assameseRules
	case "ml":
		return malayalamRules
	case "mr":
		return marathiRules
	}
	return nil
}

// shiftDigits moves ASCII digits into the script's own digit block.
func shiftDigits(text string, scr script.Script) string {
	zero, ok := script.DigitZero(scr)
	if !ok {
		return text
	}
	offset := zero - '0'
	var b strings.Builder
	b.Grow(len(text))
	for _, c := range text {
		if c >= '0' && c <= '9' {
			c += offset
		}
		b.WriteRune(c)
	}
	return b.String()
}

// TransformText prepares one text run for the native engine: language
// replacement rules, digit-block shifting, and wire escaping. ASCII text
// only needs escaping.
func TransformText(text string, scr script.Script, lang string) string {
	if !isASCII(text) {
		if rules := languageRules(lang); rules != nil {
			text = rules.Replace(text)
		}
		text = shiftDigits(text, scr)
	}
	return wireEscaper.Replace(text)
}

// charDescriptions maps diacritics and signs to their spoken names for
// character-spelling mode; the raw codepoints synthesize to silence or
// clicks. Characters without an entry fall back to the literal text.
var charDescriptions = map[rune]string{
	// devanagari
	0x0901: "चंद्रबिंदु.",
	0x0902: "अनुस्वार.",
	0x0903: "विसर्ग.",
	0x093C: "नुक्ता.",
	0x094D: "हलन्त.",
	// bengali
	0x0981: "চন্দ্ৰবিন্দু",
	0x0982: "উনস্বৰ",
	0x0983: "বিসৰ্গ",
	0x09CD: "হছন্ত",
	// malayalam
	0x0D02: "അനുസ്വാരം",
	0x0D03: "വിസർഗം",
	0x0D4D: "ചന്ദ്രക്കല",
}

// DescribeCharacter returns the spoken form of a single character for
// character-spelling mode. Multi-rune input and undescribed characters
// pass through unchanged.
func DescribeCharacter(text string) string {
	if utf8.RuneCountInString(text) != 1 {
		return text
	}
	c, _ := utf8.DecodeRuneInString(text)
	if desc, ok := charDescriptions[c]; ok {
		return desc
	}
	return text
}

// RenderSegment turns a segment into the engine's tagged wire text.
// Index marks become <mark N> tags; break, pitch, volume, and phoneme
// hints have no wire representation and are skipped. The returned flag
// reports whether character-spelling mode was active for the segment's
// text. In character mode a single-character segment is replaced by its
// spoken description.
func RenderSegment(seg speech.Segment, scr script.Script, lang string) (string, bool) {
	var b strings.Builder
	charMode := false
	sawCharText := false
	var plain strings.Builder

	for _, it := range seg.Items {
		switch it.Kind {
		case speech.KindText:
			text := it.Text
			plain.WriteString(text)
			if charMode {
				sawCharText = true
				text = DescribeCharacter(text)
			}
			b.WriteString(TransformText(text, scr, lang))
		case speech.KindIndexMark:
			fmt.Fprintf(&b, "<mark %d>", it.ID)
		case speech.KindCharMode:
			charMode = it.On
		}
	}

	out := b.String()
	if !sawCharText {
		// Sentence-final danda reads as a pause, not a spoken word.
		out = strings.ReplaceAll(out, string(script.Danda), ".")
		out = strings.ReplaceAll(out, string(script.DoubleDanda), ".")
	}
	out = strings.TrimRight(out, " \t\r\n")
	return out, sawCharText
}

// RateToLengthScale converts the host's 0-100 rate to the engine's
// phoneme length scale: 1.0 at rate 50, slower below, faster above.
func RateToLengthScale(rate int) float64 {
	if rate < 0 {
		rate = 0
	} else if rate > 100 {
		rate = 100
	}
	r := float64(rate)
	if rate < 50 {
		return 1 / ((r / 75) + (1.0 / 3))
	}
	return 1 / (((r - 50) / 25) + 1)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
