package delegate

import (
	"context"
	"sync"

	"github.com/vaanilabs/vaani/internal/speech"
)

const mockSampleRate = 22050

// Mock is an in-process backend for tests and for running the service
// without any external synthesizer. It feeds a short silent chunk per
// text group and reports marks in order.
type Mock struct {
	feed Feed

	mu       sync.Mutex
	settings Settings
	texts    []string
	fail     error
	paused   bool
}

func NewMock(feed Feed) *Mock {
	return &Mock{
		feed:     feed,
		settings: Settings{Rate: 50, Volume: 100, Pitch: 50},
	}
}

// Fail makes every subsequent Speak return err. Pass nil to recover.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Texts returns the text of every Speak call so far.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *Mock) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *Mock) Apply(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

func (m *Mock) Cancel() {}

func (m *Mock) Pause(on bool) {
	m.mu.Lock()
	m.paused = on
	m.mu.Unlock()
}

func (m *Mock) Speak(ctx context.Context, items []speech.Item, ev Events) error {
	m.mu.Lock()
	fail := m.fail
	m.texts = append(m.texts, speech.Segment{Items: items}.PlainText())
	m.mu.Unlock()
	if fail != nil {
		return fail
	}
	for _, g := range groupItems(items) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.text != "" {
			pcm := make([]byte, 2*len(g.text))
			if !m.feed(pcm, mockSampleRate) {
				return ctx.Err()
			}
		}
		if g.hasMark && ev.Index != nil {
			ev.Index(g.mark)
		}
	}
	if ev.Done != nil {
		ev.Done()
	}
	return nil
}

func (m *Mock) ListVoices(context.Context) ([]Voice, error) {
	return []Voice{{ID: "en", Name: "english", Lang: "en"}}, nil
}
