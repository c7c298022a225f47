package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Emitter receives drained PCM frames. A StreamSink calls it from its
// worker goroutine; implementations forward frames to whatever transport
// owns playback.
type Emitter func(pcm []byte)

var ErrSinkClosed = errors.New("audio: sink closed")

// Sink accepts PCM16LE mono audio. Feed may block for backpressure, Sync
// blocks until buffered audio has drained, Stop discards buffered audio,
// and Idle drains then parks the sink between utterances.
type Sink interface {
	Feed(pcm []byte) error
	Sync()
	Idle()
	Stop()
	Pause(on bool)
	Close() error
	SampleRate() int
}

const maxQueuedChunks = 256

// StreamSink buffers chunks and drains them through an Emitter at the
// real-time playback rate, so Sync models a hardware buffer draining.
// One sink serves one sample rate; rate changes close and recreate the
// sink rather than mutating it.
type StreamSink struct {
	rate int

	mu        sync.Mutex
	cond      *sync.Cond
	emit      Emitter
	queue     [][]byte
	busy      bool
	paused    bool
	closed    bool
	interrupt chan struct{}
}

func NewStreamSink(sampleRate int, emit Emitter) *StreamSink {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	s := &StreamSink{rate: sampleRate, emit: emit, interrupt: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.worker()
	return s
}

func (s *StreamSink) SampleRate() int { return s.rate }

// Feed copies pcm into the queue. It blocks while the queue is full,
// pushing backpressure onto the producer the way a saturated device
// buffer would.
func (s *StreamSink) Feed(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && len(s.queue) >= maxQueuedChunks {
		s.cond.Wait()
	}
	if s.closed {
		return ErrSinkClosed
	}
	s.queue = append(s.queue, chunk)
	s.cond.Broadcast()
	return nil
}

// Sync blocks until every queued chunk has been emitted and paced out.
// A paused sink syncs only after it resumes; Stop and Close wake waiters.
func (s *StreamSink) Sync() {
	s.mu.Lock()
	for !s.closed && (len(s.queue) > 0 || s.busy) {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Idle drains like Sync. Kept distinct to mirror player semantics, where
// idling additionally releases the device between utterances.
func (s *StreamSink) Idle() { s.Sync() }

// Stop discards queued audio and cuts short the chunk currently pacing.
func (s *StreamSink) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = nil
	close(s.interrupt)
	s.interrupt = make(chan struct{})
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Pause holds playback at chunk granularity; buffered audio stays queued.
func (s *StreamSink) Pause(on bool) {
	s.mu.Lock()
	s.paused = on
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Rebind swaps the emitter; queued chunks drain to the new one.
func (s *StreamSink) Rebind(emit Emitter) {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
}

func (s *StreamSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	close(s.interrupt)
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (s *StreamSink) worker() {
	s.mu.Lock()
	for {
		for !s.closed && (len(s.queue) == 0 || s.paused) {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		chunk := s.queue[0]
		s.queue = s.queue[1:]
		s.busy = true
		emit := s.emit
		intr := s.interrupt
		s.cond.Broadcast()
		s.mu.Unlock()

		if emit != nil {
			emit(chunk)
		}
		s.pace(len(chunk), intr)

		s.mu.Lock()
		s.busy = false
		s.cond.Broadcast()
	}
}

// pace sleeps for the chunk's real-time duration, unless interrupted by
// Stop or Close.
func (s *StreamSink) pace(n int, intr <-chan struct{}) {
	d := time.Duration(n/2) * time.Second / time.Duration(s.rate)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-intr:
	}
}

// CaptureSink collects PCM without pacing, for one-shot synthesis and
// tests. It records the calls it receives so hand-off ordering can be
// asserted.
type CaptureSink struct {
	mu     sync.Mutex
	rate   int
	buf    []byte
	events []string
	closed bool
}

func NewCaptureSink(sampleRate int) *CaptureSink {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &CaptureSink{rate: sampleRate}
}

func (c *CaptureSink) SampleRate() int { return c.rate }

func (c *CaptureSink) Feed(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	c.buf = append(c.buf, pcm...)
	c.events = append(c.events, fmt.Sprintf("feed:%d", len(pcm)))
	return nil
}

func (c *CaptureSink) Sync() { c.record("sync") }

func (c *CaptureSink) Idle() { c.record("idle") }

// Stop discards captured audio, matching a real sink dropping its buffer.
func (c *CaptureSink) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = nil
	c.events = append(c.events, "stop")
}

func (c *CaptureSink) Pause(on bool) { c.record(fmt.Sprintf("pause:%t", on)) }

func (c *CaptureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *CaptureSink) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Bytes returns the PCM captured since construction or the last Stop.
func (c *CaptureSink) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

// Events returns the recorded call sequence, oldest first.
func (c *CaptureSink) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func (c *CaptureSink) record(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}
