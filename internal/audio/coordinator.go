package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vaanilabs/vaani/internal/engine"
	"github.com/vaanilabs/vaani/internal/observability"
)

// SinkFactory builds the sink for one voice at one sample rate.
type SinkFactory func(sampleRate int, emit Emitter) Sink

// Config wires a Coordinator.
type Config struct {
	// NativeRate is the native voice's sample rate, from its quality tier.
	NativeRate int
	// DelegateRate is the delegate voice's sample rate.
	DelegateRate int
	NativeEmit   Emitter
	DelegateEmit Emitter
	// Factory defaults to NewStreamSink.
	Factory SinkFactory
	// OnDrained fires after an end-of-utterance once both sinks are idle.
	OnDrained func()
	Metrics   *observability.Metrics
}

// Coordinator owns the native/delegate sink pair and enforces clean
// hand-off: before feeding one sink it synchronizes the other, so the two
// voices never play concurrently mid-utterance. Audio arriving after the
// speaking flag is cleared answers Abort so a cancelled engine job winds
// down instead of feeding a torn-down sink.
type Coordinator struct {
	mu        sync.Mutex
	factory   SinkFactory
	metrics   *observability.Metrics
	onDrained func()

	native       Sink
	delegate     Sink
	nativeEmit   Emitter
	delegateEmit Emitter

	speaking atomic.Bool
	// last is the sink fed most recently: 0 none, 1 native, 2 delegate.
	last int
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.NativeRate <= 0 {
		cfg.NativeRate = 16000
	}
	if cfg.DelegateRate <= 0 {
		cfg.DelegateRate = 22050
	}
	factory := cfg.Factory
	if factory == nil {
		factory = func(rate int, emit Emitter) Sink { return NewStreamSink(rate, emit) }
	}
	c := &Coordinator{
		factory:      factory,
		metrics:      cfg.Metrics,
		onDrained:    cfg.OnDrained,
		nativeEmit:   cfg.NativeEmit,
		delegateEmit: cfg.DelegateEmit,
	}
	c.native = factory(cfg.NativeRate, cfg.NativeEmit)
	c.delegate = factory(cfg.DelegateRate, cfg.DelegateEmit)
	return c
}

// Begin marks a new utterance as speaking. Late callbacks from an earlier
// cancelled utterance are rejected until the next Begin.
func (c *Coordinator) Begin() {
	c.mu.Lock()
	c.last = 0
	c.mu.Unlock()
	c.speaking.Store(true)
}

func (c *Coordinator) Speaking() bool { return c.speaking.Load() }

// OnAudio routes one engine callback. A nil pcm slice is the
// end-of-utterance signal: both sinks are drained to idle and OnDrained
// fires. The returned action goes back to the engine verbatim.
func (c *Coordinator) OnAudio(pcm []byte, sampleRate int, native bool) engine.Action {
	if !c.speaking.Load() {
		c.stopSinks()
		return engine.Abort
	}
	if len(pcm) == 0 {
		c.speaking.Store(false)
		c.mu.Lock()
		nat, del := c.native, c.delegate
		drained := c.onDrained
		c.mu.Unlock()
		if nat != nil {
			nat.Idle()
		}
		if del != nil {
			del.Idle()
		}
		if drained != nil {
			drained()
		}
		return engine.Abort
	}

	c.mu.Lock()
	target := c.ensureSinkLocked(native, sampleRate)
	var other Sink
	slot := 1
	if native {
		other = c.delegate
	} else {
		other = c.native
		slot = 2
	}
	if c.last != 0 && c.last != slot && c.metrics != nil {
		c.metrics.SinkHandoffs.Inc()
	}
	c.last = slot
	c.mu.Unlock()

	// Drain the other voice before this one starts; syncing an idle sink
	// returns immediately.
	if other != nil {
		other.Sync()
	}
	if err := target.Feed(pcm); err != nil {
		return engine.Abort
	}
	if c.metrics != nil {
		label := "native"
		if !native {
			label = "delegate"
		}
		c.metrics.AudioChunks.WithLabelValues(label).Inc()
	}
	return engine.Continue
}

// Rates reports the current sink sample rates.
func (c *Coordinator) Rates() (native, delegate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.native != nil {
		native = c.native.SampleRate()
	}
	if c.delegate != nil {
		delegate = c.delegate.SampleRate()
	}
	return native, delegate
}

// SetNativeRate recreates the native sink when the voice quality changes
// its sample rate. No-op when the rate already matches.
func (c *Coordinator) SetNativeRate(sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	c.mu.Lock()
	c.ensureSinkLocked(true, sampleRate)
	c.mu.Unlock()
}

// Rebind closes both sinks and recreates them against new emitters,
// keeping their sample rates. Used when a new transport attaches.
func (c *Coordinator) Rebind(nativeEmit, delegateEmit Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nativeEmit, c.delegateEmit = nativeEmit, delegateEmit
	nRate, dRate := 16000, 22050
	if c.native != nil {
		nRate = c.native.SampleRate()
		_ = c.native.Close()
	}
	if c.delegate != nil {
		dRate = c.delegate.SampleRate()
		_ = c.delegate.Close()
	}
	c.native = c.factory(nRate, nativeEmit)
	c.delegate = c.factory(dRate, delegateEmit)
}

// Stop clears the speaking flag and discards both sinks' buffered audio.
func (c *Coordinator) Stop() {
	c.speaking.Store(false)
	c.stopSinks()
}

func (c *Coordinator) Pause(on bool) {
	c.mu.Lock()
	nat, del := c.native, c.delegate
	c.mu.Unlock()
	if nat != nil {
		nat.Pause(on)
	}
	if del != nil {
		del.Pause(on)
	}
}

func (c *Coordinator) Close() error {
	c.speaking.Store(false)
	c.mu.Lock()
	nat, del := c.native, c.delegate
	c.native, c.delegate = nil, nil
	c.mu.Unlock()

	var errs []string
	if nat != nil {
		if err := nat.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("native sink: %v", err))
		}
	}
	if del != nil {
		if err := del.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("delegate sink: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Coordinator) stopSinks() {
	c.mu.Lock()
	nat, del := c.native, c.delegate
	c.mu.Unlock()
	if nat != nil {
		nat.Stop()
	}
	if del != nil {
		del.Stop()
	}
}

// ensureSinkLocked returns the sink for the slot, recreating it when the
// chunk's sample rate differs. Caller holds c.mu.
func (c *Coordinator) ensureSinkLocked(native bool, sampleRate int) Sink {
	cur := c.delegate
	emit := c.delegateEmit
	if native {
		cur = c.native
		emit = c.nativeEmit
	}
	if cur != nil && (sampleRate <= 0 || cur.SampleRate() == sampleRate) {
		return cur
	}
	if cur != nil {
		_ = cur.Close()
	}
	next := c.factory(sampleRate, emit)
	if native {
		c.native = next
	} else {
		c.delegate = next
	}
	return next
}
