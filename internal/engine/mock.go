package engine

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var markTag = regexp.MustCompile(`<mark (-?[0-9]+)>`)

// Mock is a deterministic in-process engine for tests and for running the
// daemon without voice data. It walks the tagged text in order: each
// whitespace-separated word becomes one audio chunk whose payload is the
// word's UTF-8 bytes (padded to a whole sample), each <mark N> tag becomes
// an index event, and the stream ends with index 0 and a nil audio chunk.
// Pure-ASCII words are stamped as English-voice audio so the dual-sink
// hand-off path gets exercised.
//
// Events are delivered synchronously on the Synthesize caller's goroutine.
type Mock struct {
	mu         sync.Mutex
	cb         Callbacks
	inited     bool
	terminated bool
	dataDir    string

	voice     string
	voiceDir  string
	engVoice  string
	engDir    string
	speaker   int
	rate      int
	texts     []string
	failVoice map[string]Status
	failSynth Status
}

func NewMock() *Mock {
	return &Mock{rate: 16000, failVoice: make(map[string]Status)}
}

func (m *Mock) Init(dataDir string, cb Callbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inited = true
	m.terminated = false
	m.dataDir = dataDir
	m.cb = cb
	return nil
}

func (m *Mock) Synthesize(text string, _ Params) Status {
	m.mu.Lock()
	if !m.inited || m.terminated {
		m.mu.Unlock()
		return StatusInternalError
	}
	if m.failSynth != StatusOK {
		m.mu.Unlock()
		return m.failSynth
	}
	m.texts = append(m.texts, text)
	cb := m.cb
	rate := m.rate
	m.mu.Unlock()

	m.emit(text, cb, rate)
	return StatusOK
}

func (m *Mock) emit(text string, cb Callbacks, rate int) {
	pos := 0
	for _, loc := range markTag.FindAllStringSubmatchIndex(text, -1) {
		if !m.emitWords(text[pos:loc[0]], cb, rate) {
			return
		}
		id, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err == nil && cb.Index != nil && cb.Index(id) == Abort {
			return
		}
		pos = loc[1]
	}
	if !m.emitWords(text[pos:], cb, rate) {
		return
	}
	if cb.Index != nil && cb.Index(0) == Abort {
		return
	}
	if cb.Audio != nil {
		cb.Audio(nil, rate, true)
	}
}

func (m *Mock) emitWords(text string, cb Callbacks, rate int) bool {
	if cb.Audio == nil {
		return true
	}
	for _, word := range strings.Fields(text) {
		pcm := []byte(word)
		if len(pcm)%2 == 1 {
			pcm = append(pcm, 0)
		}
		if cb.Audio(pcm, rate, !isASCIIWord(word)) == Abort {
			return false
		}
	}
	return true
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (m *Mock) SetVoice(id, dir string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited || m.terminated {
		return StatusInternalError
	}
	if st, ok := m.failVoice[id]; ok {
		return st
	}
	m.voice = id
	m.voiceDir = dir
	return StatusOK
}

func (m *Mock) SetEnglishVoice(id, dir string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited || m.terminated {
		return StatusInternalError
	}
	if st, ok := m.failVoice[id]; ok {
		return st
	}
	m.engVoice = id
	m.engDir = dir
	return StatusOK
}

func (m *Mock) SetSpeaker(id int) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited || m.terminated {
		return StatusInternalError
	}
	m.speaker = id
	return StatusOK
}

func (m *Mock) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	return nil
}

// FailVoice makes SetVoice and SetEnglishVoice return st for the given id.
func (m *Mock) FailVoice(id string, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failVoice[id] = st
}

// FailSynthesis makes Synthesize return st without emitting events.
// StatusOK restores normal behaviour.
func (m *Mock) FailSynthesis(st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSynth = st
}

// SetRate changes the sample rate stamped on audio events.
func (m *Mock) SetRate(rate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate > 0 {
		m.rate = rate
	}
}

func (m *Mock) Voice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voice
}

func (m *Mock) EnglishVoice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engVoice
}

func (m *Mock) Speaker() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaker
}

// Texts returns every text submitted to Synthesize, oldest first.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

func (m *Mock) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}
