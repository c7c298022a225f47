package speech

import (
	"strings"

	"github.com/vaanilabs/vaani/internal/script"
)

// ItemKind discriminates the members of a speech request.
type ItemKind int

const (
	KindText ItemKind = iota
	KindIndexMark
	KindCharMode
	KindLangChange
	KindBreak
	KindPitch
	KindVolume
	KindPhoneme
)

func (k ItemKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindIndexMark:
		return "index"
	case KindCharMode:
		return "char_mode"
	case KindLangChange:
		return "lang"
	case KindBreak:
		return "break"
	case KindPitch:
		return "pitch"
	case KindVolume:
		return "volume"
	case KindPhoneme:
		return "phoneme"
	}
	return "invalid"
}

// Item is one entry of a speech request: a run of text or an inline control
// command. Items are immutable once built; the splitter only reads them.
type Item struct {
	Kind ItemKind
	Text string // KindText; fallback text for KindPhoneme
	ID   int    // KindIndexMark
	On   bool   // KindCharMode
	Lang string // KindLangChange
	Ms   int    // KindBreak
	Val  int    // KindPitch, KindVolume
	IPA  string // KindPhoneme
}

func Text(s string) Item          { return Item{Kind: KindText, Text: s} }
func IndexMark(id int) Item       { return Item{Kind: KindIndexMark, ID: id} }
func CharMode(on bool) Item       { return Item{Kind: KindCharMode, On: on} }
func LangChange(tag string) Item  { return Item{Kind: KindLangChange, Lang: tag} }
func Break(ms int) Item           { return Item{Kind: KindBreak, Ms: ms} }
func Pitch(v int) Item            { return Item{Kind: KindPitch, Val: v} }
func Volume(v int) Item           { return Item{Kind: KindVolume, Val: v} }
func Phoneme(ipa, text string) Item {
	return Item{Kind: KindPhoneme, IPA: ipa, Text: text}
}

// Request is one utterance: an ordered sequence of items consumed whole by a
// single Split call.
type Request []Item

// Segment is a contiguous script-homogeneous slice of one utterance. Control
// items are script-agnostic and ride along with the run they were issued in.
type Segment struct {
	Class script.Class
	Items []Item
}

// PlainText concatenates the segment's text items.
func (s Segment) PlainText() string {
	var b strings.Builder
	for _, it := range s.Items {
		if it.Kind == KindText {
			b.WriteString(it.Text)
		}
	}
	return b.String()
}

// TrailingMark returns the id of the segment's final item when it is an
// index mark. The dispatcher records it as the boundary id expected next.
func (s Segment) TrailingMark() (int, bool) {
	if len(s.Items) == 0 {
		return 0, false
	}
	last := s.Items[len(s.Items)-1]
	if last.Kind != KindIndexMark {
		return 0, false
	}
	return last.ID, true
}
