package speech

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vaanilabs/vaani/internal/script"
)

var acronymPattern = regexp.MustCompile(`[a-zA-Z]+`)

// Splitter partitions speech requests into script-homogeneous segments. Its
// home script follows the active voice; synthetic boundary markers are
// allocated fresh for every request, so ids are only meaningful within one
// utterance.
type Splitter struct {
	cl script.Classifier
}

func NewSplitter(home script.Script) *Splitter {
	return &Splitter{cl: script.NewClassifier(home)}
}

// SetHome switches the active script, usually after a voice change.
func (s *Splitter) SetHome(home script.Script) {
	s.cl = script.NewClassifier(home)
}

func (s *Splitter) Home() script.Script { return s.cl.Home() }

// Split walks the request in order and produces the segment list. Adjacent
// segments never share a class: same-class runs merge greedily. Control items
// attach to the run open at their position; language-change items are
// dropped, since routing follows the classifier rather than caller tags. A
// request with no text produces no segments.
func (s *Splitter) Split(req Request) []Segment {
	st := splitState{cl: s.cl, alloc: NewMarkerAllocator()}
	for i, it := range req {
		switch it.Kind {
		case KindText:
			if it.Text == "" {
				continue
			}
			markPending := i+1 < len(req) && req[i+1].Kind == KindIndexMark
			st.text(it.Text, markPending)
		case KindLangChange:
			// dropped: the classifier decides routing
		default:
			st.control(it)
		}
	}
	return st.segs
}

type run struct {
	class script.Class
	text  string
}

type splitState struct {
	cl      script.Classifier
	alloc   *MarkerAllocator
	segs    []Segment
	pending []Item
}

func (st *splitState) text(raw string, markPending bool) {
	if isASCII(raw) || st.cl.Home() == script.Latin {
		st.appendRun(script.DelegateASCII, raw)
		return
	}
	if hasCased(raw) {
		st.splitRuns(mergeRuns(acronymRuns(raw, st.cl), true), markPending)
		return
	}
	runs := mergeRuns(scanForeign(raw, st.cl), false)
	switch len(runs) {
	case 0:
	case 1:
		// single class: continues whatever run is open, no new boundary
		st.appendRun(runs[0].class, runs[0].text)
	default:
		st.splitRuns(runs, markPending)
	}
}

// splitRuns emits runs produced by re-segmenting one text item. Every newly
// introduced boundary gets a synthetic index mark so callers still observe
// progress there; the final run takes the caller's own trailing mark when the
// next request item carries one, else a synthetic one too.
func (st *splitState) splitRuns(runs []run, markPending bool) {
	for i, r := range runs {
		st.appendRun(r.class, r.text)
		if i < len(runs)-1 || !markPending {
			st.control(IndexMark(st.alloc.Next()))
		}
	}
}

func (st *splitState) appendRun(cls script.Class, text string) {
	if n := len(st.segs); n > 0 && st.segs[n-1].Class == cls {
		st.segs[n-1].Items = append(st.segs[n-1].Items, Text(text))
		return
	}
	items := make([]Item, 0, len(st.pending)+1)
	items = append(items, st.pending...)
	st.pending = nil
	items = append(items, Text(text))
	st.segs = append(st.segs, Segment{Class: cls, Items: items})
}

func (st *splitState) control(it Item) {
	if len(st.segs) == 0 {
		st.pending = append(st.pending, it)
		return
	}
	st.segs[len(st.segs)-1].Items = append(st.segs[len(st.segs)-1].Items, it)
}

// acronymRuns re-segments text that mixes cased (Latin) letters into other
// scripts: contiguous a-zA-Z spans split out as delegate runs, everything
// between them rescanned per script.
func acronymRuns(text string, cl script.Classifier) []run {
	var runs []run
	last := 0
	for _, m := range acronymPattern.FindAllStringIndex(text, -1) {
		if m[0] > last {
			runs = append(runs, pieceRuns(text[last:m[0]], cl)...)
		}
		runs = append(runs, run{script.DelegateASCII, text[m[0]:m[1]]})
		last = m[1]
	}
	if last < len(text) {
		runs = append(runs, pieceRuns(text[last:], cl)...)
	}
	return runs
}

func pieceRuns(piece string, cl script.Classifier) []run {
	if piece == "" {
		return nil
	}
	if isASCII(piece) {
		return []run{{script.DelegateASCII, piece}}
	}
	return scanForeign(piece, cl)
}

// scanForeign classifies a non-ASCII text character by character against the
// home script. Home-range characters and sentence delimiters extend the
// native run. ASCII whitespace and punctuation extend whatever run is open
// and are dropped otherwise, so stray leading punctuation never opens a run
// on its own. Digits and other non-word characters extend an open run or
// fall out as standalone single-character delegate runs. The first word
// character of a foreign script closes the open run, emits a spoken
// "<script> script" disclosure, and opens an accumulating run of that script
// which the delegate voice will read.
func scanForeign(text string, cl script.Classifier) []run {
	var (
		runs   []run
		cur    strings.Builder
		cls    script.Class
		open   bool
		frng   script.Range
		fknown bool
	)

	flush := func() {
		if open && cur.Len() > 0 {
			runs = append(runs, run{cls, cur.String()})
		}
		cur.Reset()
		open = false
	}

	for _, c := range text {
		if cl.Range().Contains(c) || script.IsSentenceDelimiter(c) {
			if !open || cls.Kind != script.KindNative {
				flush()
				cls = script.Native(cl.Home())
				open = true
			}
			cur.WriteRune(c)
			continue
		}

		if script.IsASCIISpace(c) || script.IsASCIIPunct(c) {
			if open {
				cur.WriteRune(c)
			}
			continue
		}

		if (c >= '0' && c <= '9') || !script.IsWordChar(c) {
			if open {
				cur.WriteRune(c)
			} else {
				runs = append(runs, run{script.DelegateASCII, string(c)})
			}
			continue
		}

		// word character outside the home range
		if open && cls.Kind == script.KindUnknown && foreignContinues(c, frng, fknown) {
			cur.WriteRune(c)
			continue
		}
		name := script.NameOf(c)
		if open && cls.Kind == script.KindUnknown && string(cls.Script) == name {
			cur.WriteRune(c)
			continue
		}
		flush()
		runs = append(runs, run{script.DelegateASCII, name + " script"})
		frng, fknown = script.ForeignRange(name)
		cls = script.Unknown(name)
		open = true
		cur.WriteRune(c)
	}

	flush()
	return runs
}

// foreignContinues reports whether c stays inside the foreign run opened with
// range frng. Unregistered scripts fall back to the Indic superset with
// inverted membership: the run absorbs everything non-ASCII until an Indic
// character appears.
func foreignContinues(c rune, frng script.Range, known bool) bool {
	if known {
		return frng.Contains(c)
	}
	return c >= 0x80 && !frng.Contains(c)
}

// mergeRuns collapses adjacent same-class runs. With glue set (the acronym
// path), ASCII pieces with no letters or digits also fold into the run before
// them regardless of class, keeping "ABC-DEF" one delegate run and gluing
// dangling punctuation to the text it followed.
func mergeRuns(runs []run, glue bool) []run {
	var out []run
	for _, r := range runs {
		if r.text == "" {
			continue
		}
		if len(out) > 0 && (out[len(out)-1].class == r.class || (glue && isGlueText(r.text))) {
			out[len(out)-1].text += r.text
			continue
		}
		out = append(out, r)
	}
	return out
}

func isGlueText(s string) bool {
	if !isASCII(s) {
		return false
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func hasCased(s string) bool {
	for _, c := range s {
		if unicode.IsUpper(c) || unicode.IsLower(c) || unicode.IsTitle(c) {
			return true
		}
	}
	return false
}
