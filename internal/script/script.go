package script

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/runenames"
)

// Script identifies one supported writing system.
type Script string

const (
	Devanagari Script = "devanagari"
	Bengali    Script = "bengali"
	Gurmukhi   Script = "gurmukhi"
	Gujarati   Script = "gujarati"
	Oriya      Script = "oriya"
	Tamil      Script = "tamil"
	Telugu     Script = "telugu"
	Kannada    Script = "kannada"
	Malayalam  Script = "malayalam"
	Sinhala    Script = "sinhala"
	Latin      Script = "latin"
)

// Range is an inclusive span of Unicode code points.
type Range struct {
	Lo, Hi rune
}

func (r Range) Contains(c rune) bool { return c >= r.Lo && c <= r.Hi }

func (r Range) IsZero() bool { return r.Lo == 0 && r.Hi == 0 }

var ranges = map[Script]Range{
	Devanagari: {0x0900, 0x097F},
	Bengali:    {0x0980, 0x09FF},
	Gurmukhi:   {0x0A00, 0x0A7F},
	Gujarati:   {0x0A80, 0x0AFF},
	Oriya:      {0x0B00, 0x0B7F},
	Tamil:      {0x0B80, 0x0BFF},
	Telugu:     {0x0C00, 0x0C7F},
	Kannada:    {0x0C80, 0x0CFF},
	Malayalam:  {0x0D00, 0x0D7F},
	Sinhala:    {0x0D80, 0x0DFF},
	Latin:      {0x0000, 0x007F},
}

// IndicRange spans every Indic block the native engine can render. It doubles
// as the continuation range for scripts the table does not name, with
// membership inverted: an unrecognized foreign run keeps absorbing characters
// until one lands back inside an Indic block.
var IndicRange = Range{0x0900, 0x0DFF}

// Danda and DoubleDanda end sentences in every supported Indic script, so the
// classifier treats them as part of whatever run is open instead of resolving
// them by block membership.
const (
	Danda       = '।'
	DoubleDanda = '॥'
)

func IsSentenceDelimiter(c rune) bool { return c == Danda || c == DoubleDanda }

// RangeOf returns the code point range registered for a script.
func RangeOf(s Script) (Range, bool) {
	r, ok := ranges[s]
	return r, ok
}

var langScripts = map[string]Script{
	"hi": Devanagari,
	"mr": Devanagari,
	"ne": Devanagari,
	"sa": Devanagari,
	"as": Bengali,
	"bn": Bengali,
	"or": Oriya,
	"pa": Gurmukhi,
	"gu": Gujarati,
	"ta": Tamil,
	"te": Telugu,
	"kn": Kannada,
	"ml": Malayalam,
	"si": Sinhala,
}

// ForLanguage maps a two-letter language code to its home script. English and
// anything unrecognized resolve to Latin, which routes everything to the
// delegate voice.
func ForLanguage(iso string) Script {
	if s, ok := langScripts[strings.ToLower(iso)]; ok {
		return s
	}
	return Latin
}

// NameOf resolves a human-readable script name for an arbitrary character.
// The leading word of the Unicode character name is the script for every
// block that matters here ("TAMIL LETTER A" -> "tamil"); characters with
// label-style names get "unknown".
func NameOf(c rune) string {
	name := runenames.Name(c)
	if name == "" || strings.HasPrefix(name, "<") {
		return "unknown"
	}
	first, _, _ := strings.Cut(name, " ")
	return strings.ToLower(first)
}

// ForeignRange returns the continuation range for a script name resolved out
// of character metadata. Names missing from the table fall back to IndicRange
// with inverted membership (see IndicRange).
func ForeignRange(name string) (Range, bool) {
	if r, ok := ranges[Script(name)]; ok {
		return r, true
	}
	return IndicRange, false
}

var digitZero = map[Script]rune{
	Devanagari: 0x0966,
	Bengali:    0x09E6,
	Gurmukhi:   0x0A66,
	Gujarati:   0x0AE6,
	Oriya:      0x0B66,
	Tamil:      0x0BE6,
	Telugu:     0x0C66,
	Kannada:    0x0CE6,
	Malayalam:  0x0D66,
	Sinhala:    0x0DE6,
}

// DigitZero returns the code point of zero in the script's own digit block.
// Latin reports false: ASCII digits need no shifting.
func DigitZero(s Script) (rune, bool) {
	z, ok := digitZero[s]
	return z, ok
}

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// IsASCIISpace matches the ASCII whitespace set only; Unicode spaces are
// classified as generic non-word characters instead.
func IsASCIISpace(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func IsASCIIPunct(c rune) bool {
	return c < 0x80 && strings.ContainsRune(asciiPunct, c)
}

// IsWordChar reports whether c is a letter, decimal digit, or underscore.
// Combining marks and symbols are not word characters: inside a run they
// extend it like punctuation does, and standalone they go to the delegate
// as single characters rather than opening a script run.
func IsWordChar(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// Kind is the routing class of a run of text.
type Kind int

const (
	// KindNative routes to the native synthesis engine.
	KindNative Kind = iota
	// KindDelegateASCII routes plain ASCII to the delegate synthesizer.
	KindDelegateASCII
	// KindUnknown marks foreign-script text outside the native set; it is
	// spoken by the delegate after an announced script name.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindDelegateASCII:
		return "delegate_ascii"
	case KindUnknown:
		return "unknown"
	}
	return "invalid"
}

// Class tags a run of text with its routing kind and, where resolved, the
// script it belongs to.
type Class struct {
	Kind   Kind
	Script Script
}

func Native(s Script) Class { return Class{Kind: KindNative, Script: s} }

func Unknown(name string) Class { return Class{Kind: KindUnknown, Script: Script(name)} }

// DelegateASCII is the class of plain ASCII runs.
var DelegateASCII = Class{Kind: KindDelegateASCII}

// Classifier resolves single characters against a home script.
type Classifier struct {
	home Script
	rng  Range
}

// NewClassifier builds a classifier for the given home script. Scripts
// without a registered range degrade to Latin.
func NewClassifier(home Script) Classifier {
	rng, ok := ranges[home]
	if !ok {
		home = Latin
		rng = ranges[Latin]
	}
	return Classifier{home: home, rng: rng}
}

func (cl Classifier) Home() Script { return cl.home }

func (cl Classifier) Range() Range { return cl.rng }

// Classify maps one character to its routing class. Sentence delimiters and
// characters inside the home range are native; ASCII is delegate; everything
// else resolves to an Unknown class named after its script.
func (cl Classifier) Classify(c rune) Class {
	if cl.rng.Contains(c) || IsSentenceDelimiter(c) {
		return Native(cl.home)
	}
	if c < 0x80 {
		return DelegateASCII
	}
	return Unknown(NameOf(c))
}
