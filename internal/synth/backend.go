package synth

import (
	"sync"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/engine"
	"github.com/vaanilabs/vaani/internal/observability"
	"github.com/vaanilabs/vaani/internal/script"
	"github.com/vaanilabs/vaani/internal/speech"
	"github.com/vaanilabs/vaani/internal/taskq"
	"github.com/vaanilabs/vaani/internal/voices"
)

// synthRetries bounds buffer-full resubmissions for one segment before
// it is abandoned.
const synthRetries = 3

// BackendConfig wires a Backend.
type BackendConfig struct {
	Engine      engine.Engine
	Queue       *taskq.Queue
	Catalog     *voices.Catalog
	Overrides   voices.Overrides
	Coordinator *audio.Coordinator
	Metrics     *observability.Metrics
	// OnVoice fires after a voice change has been applied, with the
	// resolved voice and its home script.
	OnVoice func(voices.Voice, script.Script)
}

// Backend drives the native engine. Every engine mutation funnels
// through the shared task queue: parameter and voice changes via Do
// (inline when idle, surviving cancellation), synthesis via DoAsync
// (always queued, discarded by cancellation).
type Backend struct {
	eng       engine.Engine
	q         *taskq.Queue
	catalog   *voices.Catalog
	overrides voices.Overrides
	coord     *audio.Coordinator
	metrics   *observability.Metrics
	onVoice   func(voices.Voice, script.Script)

	mu     sync.Mutex
	voice  voices.Voice
	home   script.Script
	rate   int
	volume int
	pitch  int
}

func NewBackend(cfg BackendConfig) *Backend {
	if cfg.Overrides == nil {
		cfg.Overrides = voices.Overrides{}
	}
	return &Backend{
		eng:       cfg.Engine,
		q:         cfg.Queue,
		catalog:   cfg.Catalog,
		overrides: cfg.Overrides,
		coord:     cfg.Coordinator,
		metrics:   cfg.Metrics,
		onVoice:   cfg.OnVoice,
		home:      script.Latin,
		rate:      50,
		volume:    100,
		pitch:     50,
	}
}

// Voice returns the currently applied voice. Empty when the engine fell
// all the way back to the delegate default.
func (b *Backend) Voice() voices.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// HomeScript is the script of the active voice, Latin when none.
func (b *Backend) HomeScript() script.Script {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.home
}

func (b *Backend) Rate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

func (b *Backend) Volume() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func (b *Backend) Pitch() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pitch
}

// SetRate stores the 0-100 speaking rate. Applied per request, so it
// only needs ordering with in-flight synthesis, which Do provides.
func (b *Backend) SetRate(rate int) {
	b.q.Do(func() {
		b.mu.Lock()
		b.rate = clamp(rate)
		b.mu.Unlock()
	})
}

func (b *Backend) SetVolume(volume int) {
	b.q.Do(func() {
		b.mu.Lock()
		b.volume = clamp(volume)
		b.mu.Unlock()
	})
}

// SetPitch stores pitch for the settings surface. The native engine has
// no pitch control; the value rides along for delegates that do.
func (b *Backend) SetPitch(pitch int) {
	b.q.Do(func() {
		b.mu.Lock()
		b.pitch = clamp(pitch)
		b.mu.Unlock()
	})
}

// SetVoice resolves and applies a voice through the fallback ladder:
// the requested id, then a catalog rescan, then any voice of the same
// language, and finally the English/delegate default rather than
// leaving the engine voiceless.
func (b *Backend) SetVoice(id string) {
	b.q.Do(func() { b.applyVoice(id) })
}

func (b *Backend) applyVoice(id string) {
	v, ok := b.catalog.Get(id)
	if !ok {
		if err := b.catalog.Rescan(); err == nil {
			if v, ok = b.catalog.Get(id); ok {
				b.fallback("rescan")
			}
		}
	}
	if !ok {
		if parsed, err := voices.ParseID(id); err == nil {
			if v, ok = b.catalog.ByLanguage(parsed.LangISO); ok {
				b.fallback("language")
			}
		}
	}

	if ok {
		st := b.eng.SetVoice(v.ID, b.catalog.Dir())
		if engine.Classify(st) == engine.DispositionOK {
			b.voiceApplied(v)
			return
		}
		// Voice data refused; try the language's catalog pick if it is
		// a different model.
		if alt, altOK := b.catalog.ByLanguage(v.LangISO); altOK && alt.ID != v.ID {
			if b.eng.SetVoice(alt.ID, b.catalog.Dir()) == engine.StatusOK {
				b.fallback("language")
				b.voiceApplied(alt)
				return
			}
		}
	}

	// Last rung: the English voice, spoken by the delegate path.
	b.fallback("english")
	b.mu.Lock()
	b.voice = voices.Voice{}
	b.home = script.Latin
	hook := b.onVoice
	b.mu.Unlock()
	if eng, ok := b.catalog.English(); ok {
		_ = b.eng.SetEnglishVoice(eng.ID, b.catalog.Dir())
	}
	if hook != nil {
		hook(voices.Voice{}, script.Latin)
	}
}

func (b *Backend) voiceApplied(v voices.Voice) {
	v = b.overrides.Apply(v)
	if speaker := b.overrides.Speaker(v.ID); speaker != 0 {
		_ = b.eng.SetSpeaker(speaker)
	}
	if b.coord != nil {
		b.coord.SetNativeRate(v.SampleRate)
	}
	home := script.ForLanguage(v.LangISO)

	b.mu.Lock()
	b.voice = v
	b.home = home
	hook := b.onVoice
	b.mu.Unlock()
	if hook != nil {
		hook(v, home)
	}
}

// InitEnglishVoice loads the installed English voice into the engine so
// delegate-class text can be spoken natively when no external delegate
// is available. Speaker overrides for the English model apply here too.
func (b *Backend) InitEnglishVoice() bool {
	eng, ok := b.catalog.English()
	if !ok {
		return false
	}
	b.q.Do(func() {
		if b.eng.SetEnglishVoice(eng.ID, b.catalog.Dir()) != engine.StatusOK {
			return
		}
		if speaker := b.overrides.Speaker(eng.ID); speaker != 0 {
			_ = b.eng.SetSpeaker(speaker)
		}
	})
	return true
}

// Speak renders the segment and submits it to the engine. The call
// returns immediately; audio and index events arrive through the engine
// callbacks. onReject fires (on the queue worker) when the engine
// refuses the text after retries, so the dispatcher can advance instead
// of hanging.
func (b *Backend) Speak(seg speech.Segment, onReject func(engine.Status)) {
	b.submit(seg, 0, onReject)
}

func (b *Backend) submit(seg speech.Segment, attempt int, onReject func(engine.Status)) {
	b.q.DoAsync(func() {
		b.mu.Lock()
		v := b.voice
		home := b.home
		rate := b.rate
		volume := b.volume
		b.mu.Unlock()

		text, charMode := RenderSegment(seg, home, v.LangISO)
		if text == "" {
			if onReject != nil {
				onReject(engine.StatusOK)
			}
			return
		}

		p := engine.Params{
			LengthScale: RateToLengthScale(rate) + b.overrides.LengthScaleTrim(v.ID),
			Volume:      float64(volume) / 100,
			CharMode:    charMode,
		}

		b.coord.Begin()
		st := b.eng.Synthesize(text, p)
		b.count(st)
		switch engine.Classify(st) {
		case engine.DispositionOK:
		case engine.DispositionTransient:
			if attempt < synthRetries {
				b.submit(seg, attempt+1, onReject)
				return
			}
			if onReject != nil {
				onReject(st)
			}
		default:
			// Abandon the segment; the engine may still serve the next.
			if onReject != nil {
				onReject(st)
			}
		}
	})
}

func (b *Backend) fallback(reason string) {
	if b.metrics != nil {
		b.metrics.VoiceFallbacks.WithLabelValues(reason).Inc()
	}
}

func (b *Backend) count(st engine.Status) {
	if b.metrics != nil {
		b.metrics.SynthRequests.WithLabelValues("native", st.String()).Inc()
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
