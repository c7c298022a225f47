package speech

import (
	"fmt"
	"strings"
	"testing"

	"github.com/vaanilabs/vaani/internal/script"
)

// renderSegments flattens a split result into one line so table cases can
// compare whole outcomes at a glance: `ascii["Hello " #1] native:devanagari["राम" #2]`.
func renderSegments(segs []Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch seg.Class.Kind {
		case script.KindNative:
			b.WriteString("native:" + string(seg.Class.Script))
		case script.KindUnknown:
			b.WriteString("unknown:" + string(seg.Class.Script))
		default:
			b.WriteString("ascii")
		}
		b.WriteByte('[')
		for j, it := range seg.Items {
			if j > 0 {
				b.WriteByte(' ')
			}
			switch it.Kind {
			case KindText:
				fmt.Fprintf(&b, "%q", it.Text)
			case KindIndexMark:
				fmt.Fprintf(&b, "#%d", it.ID)
			default:
				b.WriteString(it.Kind.String())
			}
		}
		b.WriteByte(']')
	}
	return b.String()
}

func TestSplitScenarios(t *testing.T) {
	cases := []struct {
		name string
		home script.Script
		req  Request
		want string
	}{
		{
			name: "all ascii merges into one segment",
			home: script.Devanagari,
			req:  Request{Text("Hello "), IndexMark(1), Text("ABC")},
			want: `ascii["Hello " #1 "ABC"]`,
		},
		{
			name: "ascii acronym then native word",
			home: script.Devanagari,
			req:  Request{Text("Hello "), IndexMark(1), Text("ABC"), Text("राम"), IndexMark(2)},
			want: `ascii["Hello " #1 "ABC"] native:devanagari["राम" #2]`,
		},
		{
			name: "native text keeps caller marks in order",
			home: script.Devanagari,
			req:  Request{Text("राम"), IndexMark(5), Text("सीता"), IndexMark(9)},
			want: `native:devanagari["राम" #5 "सीता" #9]`,
		},
		{
			name: "bare native digits stay native",
			home: script.Devanagari,
			req:  Request{Text("१२३")},
			want: `native:devanagari["१२३"]`,
		},
		{
			name: "foreign script announced then accumulated",
			home: script.Devanagari,
			req:  Request{Text("देवनागरी ไทย")},
			want: `native:devanagari["देवनागरी " #-2] ascii["thai script" #-3] unknown:thai["ไทย" #-4]`,
		},
		{
			name: "mixed acronym takes trailing caller mark on last piece",
			home: script.Devanagari,
			req:  Request{Text("राम ABC गया"), IndexMark(7)},
			want: `native:devanagari["राम " #-2] ascii["ABC" #-3] native:devanagari["गया" #7]`,
		},
		{
			name: "hyphenated acronym glues into one delegate run",
			home: script.Devanagari,
			req:  Request{Text("ABC-DEF राम")},
			want: `ascii["ABC-DEF" #-2] native:devanagari["राम" #-3]`,
		},
		{
			name: "empty text item produces nothing",
			home: script.Devanagari,
			req:  Request{Text("")},
			want: ``,
		},
		{
			name: "pure control request produces no segments",
			home: script.Devanagari,
			req:  Request{IndexMark(3), Break(40)},
			want: ``,
		},
		{
			name: "leading controls attach to the first segment",
			home: script.Devanagari,
			req:  Request{Pitch(120), Text("hello")},
			want: `ascii[pitch "hello"]`,
		},
		{
			name: "break rides inside one native segment",
			home: script.Devanagari,
			req:  Request{Text("नमस्ते"), Break(200), Text(" जी")},
			want: `native:devanagari["नमस्ते" break "जी"]`,
		},
		{
			name: "language change items are dropped",
			home: script.Devanagari,
			req:  Request{Text("राम"), LangChange("en"), Text("सीता")},
			want: `native:devanagari["राम" "सीता"]`,
		},
		{
			name: "latin home delegates everything",
			home: script.Latin,
			req:  Request{Text("नमस्ते hello"), IndexMark(4)},
			want: `ascii["नमस्ते hello" #4]`,
		},
		{
			name: "sentence delimiters extend the native run",
			home: script.Tamil,
			req:  Request{Text("தமிழ்। மொழி")},
			want: `native:tamil["தமிழ்। மொழி"]`,
		},
		{
			name: "standalone symbol goes to the delegate",
			home: script.Devanagari,
			req:  Request{Text("₹")},
			want: `ascii["₹"]`,
		},
		{
			name: "unicode dash extends an open native run",
			home: script.Devanagari,
			req:  Request{Text("राम—सीता")},
			want: `native:devanagari["राम—सीता"]`,
		},
		{
			name: "foreign run absorbs its own digits and spaces",
			home: script.Devanagari,
			req:  Request{Text("ไทย ๕ ไทย")},
			want: `ascii["thai script" #-2] unknown:thai["ไทย ๕ ไทย" #-3]`,
		},
		{
			name: "registered foreign script continues by block range",
			home: script.Devanagari,
			req:  Request{Text("राम தமிழ் राम")},
			want: `native:devanagari["राम " #-2] ascii["tamil script" #-3] unknown:tamil["தமிழ் " #-4] native:devanagari["राम" #-5]`,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := renderSegments(NewSplitter(tc.home).Split(tc.req))
			if got != tc.want {
				t.Fatalf("Split() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSplitNoAdjacentSegmentsShareClass(t *testing.T) {
	inputs := []Request{
		{Text("abc देव XYZ ไทย 123"), IndexMark(1), Text("end")},
		{Text("Hello "), Text("world "), Text("राम"), Text("सीता")},
		{Text("ABC-DEF राम, XYZ!"), IndexMark(2)},
		{Text("देवनागरी ไทย தமிழ் देव")},
		{Text("a1 b2"), Break(10), Text("क ख"), Text("2 + 2")},
	}
	sp := NewSplitter(script.Devanagari)
	for i, req := range inputs {
		segs := sp.Split(req)
		for j := 1; j < len(segs); j++ {
			if segs[j].Class == segs[j-1].Class {
				t.Fatalf("input %d: segments %d and %d share class %v", i, j-1, j, segs[j].Class)
			}
		}
	}
}

func TestSplitNativeOnlyHasNoSyntheticMarks(t *testing.T) {
	req := Request{Text("राम"), IndexMark(5), Text("सीता"), IndexMark(9), Text("गीता")}
	segs := NewSplitter(script.Devanagari).Split(req)
	var ids []int
	for _, seg := range segs {
		for _, it := range seg.Items {
			if it.Kind == KindIndexMark {
				ids = append(ids, it.ID)
			}
		}
	}
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 9 {
		t.Fatalf("mark ids = %v, want [5 9]", ids)
	}
	for _, id := range ids {
		if IsSynthetic(id) {
			t.Fatalf("unexpected synthetic mark %d", id)
		}
	}
}

func TestSplitAnnouncementPrecedesForeignRun(t *testing.T) {
	segs := NewSplitter(script.Devanagari).Split(Request{Text("देवनागरी ไทย")})
	for i, seg := range segs {
		if seg.Class.Kind != script.KindUnknown {
			continue
		}
		if i == 0 {
			t.Fatalf("foreign segment has no predecessor")
		}
		prev := segs[i-1]
		if prev.Class != script.DelegateASCII {
			t.Fatalf("segment before foreign run has class %v, want delegate", prev.Class)
		}
		if got := prev.PlainText(); got != "thai script" {
			t.Fatalf("announcement text = %q, want %q", got, "thai script")
		}
		return
	}
	t.Fatalf("no foreign segment in %s", renderSegments(segs))
}

// Re-splitting the textual output of a split (synthetic marks stripped) must
// reproduce the same class boundaries.
func TestSplitBoundariesStableOnResplit(t *testing.T) {
	sp := NewSplitter(script.Devanagari)
	first := sp.Split(Request{Text("नमस्ते hello दुनिया"), IndexMark(3)})

	var again Request
	var classes []script.Class
	for _, seg := range first {
		classes = append(classes, seg.Class)
		for _, it := range seg.Items {
			if it.Kind == KindText {
				again = append(again, it)
			}
		}
	}

	second := sp.Split(again)
	if len(second) != len(classes) {
		t.Fatalf("resplit produced %d segments, want %d", len(second), len(classes))
	}
	for i := range second {
		if second[i].Class != classes[i] {
			t.Fatalf("segment %d class = %v, want %v", i, second[i].Class, classes[i])
		}
	}
}

func TestSplitterSetHomeSwitchesScript(t *testing.T) {
	sp := NewSplitter(script.Devanagari)
	segs := sp.Split(Request{Text("தமிழ்")})
	if len(segs) == 0 || segs[0].Class != script.DelegateASCII {
		t.Fatalf("tamil under devanagari home = %s, want announcement first", renderSegments(segs))
	}

	sp.SetHome(script.Tamil)
	segs = sp.Split(Request{Text("தமிழ்")})
	if len(segs) != 1 || segs[0].Class != script.Native(script.Tamil) {
		t.Fatalf("tamil under tamil home = %s, want one native segment", renderSegments(segs))
	}
}

// Synthetic ids restart at the top of the reserved namespace on every
// request; they are per-utterance markers, not globally unique.
func TestSplitSyntheticIdsResetPerRequest(t *testing.T) {
	sp := NewSplitter(script.Devanagari)
	for i := 0; i < 2; i++ {
		segs := sp.Split(Request{Text("देवनागरी ไทย")})
		found := false
		for _, seg := range segs {
			for _, it := range seg.Items {
				if it.Kind == KindIndexMark && it.ID == -2 {
					found = true
				}
			}
		}
		if !found {
			t.Fatalf("run %d: no mark -2 in %s", i, renderSegments(segs))
		}
	}
}
