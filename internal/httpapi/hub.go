package httpapi

import (
	"sync"

	"github.com/vaanilabs/vaani/internal/audio"
)

// AudioFrame receives one decoded PCM chunk from a playback sink.
// Consumers must not retain pcm past the call.
type AudioFrame func(sink string, sampleRate int, pcm []byte)

// AudioHub fans PCM out of the shared coordinator to the consumers
// attached at the moment a chunk arrives: the host websocket stream
// and, while a one-shot synthesis runs, its capture buffer. The hub's
// emitters are bound to the coordinator at startup and never rebound,
// so attaching a consumer is free of sink churn.
type AudioHub struct {
	mu      sync.RWMutex
	coord   *audio.Coordinator
	seq     uint64
	stream  AudioFrame
	streamN uint64
	capture AudioFrame
	captN   uint64
}

func NewAudioHub() *AudioHub {
	return &AudioHub{}
}

// SetCoordinator wires the hub to the coordinator it emits for. The
// coordinator is constructed with the hub's emitters, so this runs
// right after; emits before it are dropped.
func (h *AudioHub) SetCoordinator(c *audio.Coordinator) {
	h.mu.Lock()
	h.coord = c
	h.mu.Unlock()
}

// NativeEmit is the coordinator's native sink emitter.
func (h *AudioHub) NativeEmit(pcm []byte) { h.emit("native", true, pcm) }

// DelegateEmit is the coordinator's delegate sink emitter.
func (h *AudioHub) DelegateEmit(pcm []byte) { h.emit("delegate", false, pcm) }

func (h *AudioHub) emit(sink string, native bool, pcm []byte) {
	h.mu.RLock()
	coord, stream, capture := h.coord, h.stream, h.capture
	h.mu.RUnlock()
	if coord == nil || (stream == nil && capture == nil) {
		return
	}
	nativeRate, delegateRate := coord.Rates()
	rate := delegateRate
	if native {
		rate = nativeRate
	}
	if stream != nil {
		stream(sink, rate, pcm)
	}
	if capture != nil {
		capture(sink, rate, pcm)
	}
}

// BindStream attaches the host websocket consumer, displacing any
// previous one. The returned detach is a no-op once a newer consumer
// has taken the slot.
func (h *AudioHub) BindStream(fn AudioFrame) (detach func()) {
	h.mu.Lock()
	h.seq++
	n := h.seq
	h.stream, h.streamN = fn, n
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		if h.streamN == n {
			h.stream = nil
		}
		h.mu.Unlock()
	}
}

// BindCapture attaches the one-shot capture consumer.
func (h *AudioHub) BindCapture(fn AudioFrame) (detach func()) {
	h.mu.Lock()
	h.seq++
	n := h.seq
	h.capture, h.captN = fn, n
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		if h.captN == n {
			h.capture = nil
		}
		h.mu.Unlock()
	}
}
