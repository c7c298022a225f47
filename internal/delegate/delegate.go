// Package delegate defines the external synthesizer used for text
// outside the native engine's language set, and its implementations:
// a remote websocket synthesizer, a local subprocess synthesizer, a
// sticky failover pair, and a mock.
package delegate

import (
	"context"
	"errors"

	"github.com/vaanilabs/vaani/internal/speech"
)

var ErrUnavailable = errors.New("delegate: backend unavailable")

// Settings is the delegate's adjustable voice surface, persisted and
// passed through verbatim; the dispatcher does not interpret it.
type Settings struct {
	Voice   string `json:"voice"`
	Variant string `json:"variant,omitempty"`
	Rate    int    `json:"rate"`
	Volume  int    `json:"volume"`
	Pitch   int    `json:"pitch"`
}

// Voice is one synthesizer voice offered by the delegate.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Events receives a speaking job's progress. Index fires for each index
// mark once its preceding text has been fed; Done fires exactly once
// when the job's audio has been handed off, unless the job was
// cancelled or returned an error.
type Events struct {
	Index func(id int)
	Done  func()
}

// Feed pushes one PCM chunk into the shared delegate audio path. It
// returns false when the utterance has been cancelled and the backend
// must stop producing.
type Feed func(pcm []byte, sampleRate int) bool

// Backend is the minimal synthesizer capability the dispatcher needs.
// Speak blocks until the job's audio has been fed (it is called from a
// dispatch goroutine, not the host thread) and returns early on cancel
// or failure.
type Backend interface {
	Name() string
	Speak(ctx context.Context, items []speech.Item, ev Events) error
	Cancel()
	Pause(on bool)
	Settings() Settings
	Apply(Settings)
	ListVoices(ctx context.Context) ([]Voice, error)
}

// textGroup is a run of text ending at an index mark, the granularity
// at which delegates synthesize and report progress.
type textGroup struct {
	text    string
	mark    int
	hasMark bool
}

// groupItems folds a segment's items into text groups split at index
// marks. Control hints the delegate cannot express are dropped.
func groupItems(items []speech.Item) []textGroup {
	var groups []textGroup
	var cur textGroup
	for _, it := range items {
		switch it.Kind {
		case speech.KindText:
			cur.text += it.Text
		case speech.KindIndexMark:
			cur.mark = it.ID
			cur.hasMark = true
			groups = append(groups, cur)
			cur = textGroup{}
		}
	}
	if cur.text != "" {
		groups = append(groups, cur)
	}
	return groups
}
