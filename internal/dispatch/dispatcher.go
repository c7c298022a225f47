// Package dispatch sequences a speech request's segments across the two
// synthesis backends. One utterance is in flight at a time; a new Speak
// from any session cancels the current one. Segment jobs complete through
// one of three edges (engine index zero, delegate done, sink drain), all
// funnelled into a single idempotent per-job completion.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/delegate"
	"github.com/vaanilabs/vaani/internal/engine"
	"github.com/vaanilabs/vaani/internal/journal"
	"github.com/vaanilabs/vaani/internal/observability"
	"github.com/vaanilabs/vaani/internal/script"
	"github.com/vaanilabs/vaani/internal/speech"
	"github.com/vaanilabs/vaani/internal/synth"
	"github.com/vaanilabs/vaani/internal/taskq"
)

var ErrNotSpeaking = errors.New("dispatch: no utterance in flight")

// State is the dispatcher's phase.
type State int

const (
	// Idle: no utterance in flight.
	Idle State = iota
	// Dispatching: a segment has been handed to a backend and its
	// completion edge is awaited.
	Dispatching
	// AwaitingBackend: between segments, the next hand-off is queued.
	AwaitingBackend
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case AwaitingBackend:
		return "awaiting_backend"
	default:
		return "unknown"
	}
}

// Config wires a Dispatcher.
type Config struct {
	Splitter    *speech.Splitter
	Native      *synth.Backend
	Delegate    delegate.Backend // nil routes delegate-class text to the engine's English voice
	Coordinator *audio.Coordinator
	Queue       *taskq.Queue
	Journal     journal.Store
	JournalText bool
	Metrics     *observability.Metrics
}

// utterance accumulates the journal row for one Speak.
type utterance struct {
	id             string
	sessionID      string
	voiceID        string
	text           string
	segments       int
	nativeSegments int
	chars          int
	syntheticMarks int
	started        time.Time
	firstAudio     time.Duration
}

type Dispatcher struct {
	splitter    *speech.Splitter
	native      *synth.Backend
	delegate    delegate.Backend
	coord       *audio.Coordinator
	queue       *taskq.Queue
	journal     journal.Store
	journalText bool
	metrics     *observability.Metrics

	mu        sync.Mutex
	notify    func(id *int)
	onStarted func()
	gen       uint64
	state     State
	pending   []speech.Segment
	idx       int
	// swallowNil counts trailing end-of-utterance signals owed by engine
	// jobs already completed through their index event. They must not
	// reach the coordinator while later segments are still queued.
	swallowNil int
	// boundary is the current job's trailing index mark. It is owed to
	// the host; a completion edge that arrives before the backend raises
	// it reports it itself so no boundary is lost.
	boundary        int
	boundaryPending bool
	delegCancel     context.CancelFunc
	utt             *utterance
}

func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		splitter:    cfg.Splitter,
		native:      cfg.Native,
		delegate:    cfg.Delegate,
		coord:       cfg.Coordinator,
		queue:       cfg.Queue,
		journal:     cfg.Journal,
		journalText: cfg.JournalText,
		metrics:     cfg.Metrics,
	}
}

// SetNotifier installs the host's index-reached callback. A nil id means
// the utterance completed.
func (d *Dispatcher) SetNotifier(fn func(id *int)) {
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}

// SetOnSpeechStarted installs the callback fired at the first audio chunk
// of each utterance.
func (d *Dispatcher) SetOnSpeechStarted(fn func()) {
	d.mu.Lock()
	d.onStarted = fn
	d.mu.Unlock()
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) Speaking() bool { return d.State() != Idle }

// Speak splits the request and starts dispatching its segments. An
// utterance already in flight is cancelled first. Requests with no text
// complete immediately.
func (d *Dispatcher) Speak(sessionID string, req speech.Request) {
	started := time.Now()

	d.mu.Lock()
	d.cancelLocked(journal.OutcomeCancelled)

	segs := d.splitter.Split(req)
	if len(segs) == 0 {
		notify := d.notify
		d.count(journal.OutcomeDone)
		d.mu.Unlock()
		if notify != nil {
			notify(nil)
		}
		return
	}

	d.gen++
	g := d.gen
	d.pending = segs
	d.idx = 0
	d.swallowNil = 0
	d.boundaryPending = false
	d.state = AwaitingBackend
	d.utt = newUtterance(sessionID, d.native.Voice().ID, req, segs, started)
	d.metrics.ObserveStage(observability.StageSplit, time.Since(started))
	d.countSegments(segs)
	d.mu.Unlock()

	d.dispatch(g)
}

func newUtterance(sessionID, voiceID string, req speech.Request, segs []speech.Segment, started time.Time) *utterance {
	u := &utterance{
		id:        uuid.NewString(),
		sessionID: sessionID,
		voiceID:   voiceID,
		segments:  len(segs),
		started:   started,
	}
	for _, it := range req {
		if it.Kind == speech.KindText {
			u.text += it.Text
			u.chars += len([]rune(it.Text))
		}
	}
	for _, seg := range segs {
		if seg.Class.Kind == script.KindNative {
			u.nativeSegments++
		}
		for _, it := range seg.Items {
			if it.Kind == speech.KindIndexMark && speech.IsSynthetic(it.ID) {
				u.syntheticMarks++
			}
		}
	}
	return u
}

// dispatch hands the current segment to its backend.
func (d *Dispatcher) dispatch(g uint64) {
	d.mu.Lock()
	if g != d.gen || d.state == Idle || d.idx >= len(d.pending) {
		d.mu.Unlock()
		return
	}
	seg := d.pending[d.idx]
	job := d.idx
	first := job == 0
	d.state = Dispatching
	d.boundary, d.boundaryPending = seg.TrailingMark()
	toNative := seg.Class.Kind == script.KindNative || d.delegate == nil
	d.mu.Unlock()

	if first {
		d.metrics.ObserveStage(observability.StageFirstDispatch, d.sinceStart())
	}

	if toNative {
		// Rejections are counted by the backend; advancing is all that is
		// left to do here.
		d.native.Speak(seg, func(engine.Status) {
			d.completeJob(g, job, false)
		})
		return
	}
	d.dispatchDelegate(g, job, seg)
}

// dispatchDelegate runs the delegate job on its own goroutine; its Speak
// blocks while feeding audio. The coordinator Begin happens inside the
// goroutine so a cancelled utterance's teardown cannot interleave with it.
func (d *Dispatcher) dispatchDelegate(g uint64, job int, seg speech.Segment) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	if g != d.gen || d.state == Idle {
		d.mu.Unlock()
		cancel()
		return
	}
	d.delegCancel = cancel
	d.mu.Unlock()

	go func() {
		defer cancel()
		if ctx.Err() != nil {
			return
		}
		d.coord.Begin()
		start := time.Now()
		err := d.delegate.Speak(ctx, seg.Items, delegate.Events{
			Index: func(id int) { d.reportIndex(g, id) },
			Done:  func() { d.completeJob(g, job, false) },
		})
		if d.metrics != nil {
			st := "ok"
			if err != nil {
				st = "error"
			}
			d.metrics.SynthRequests.WithLabelValues("delegate", st).Inc()
			d.metrics.SegmentSynthSecs.WithLabelValues("delegate").Observe(time.Since(start).Seconds())
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			// Skip the failed segment rather than stalling the utterance.
			d.completeJob(g, job, false)
		}
	}()
}

// completeJob is the single completion edge for segment jobs. It is
// idempotent: late or duplicate signals for an already-advanced job are
// dropped. engineJob marks completions driven by the engine's index
// event, whose trailing end-of-utterance signal is still owed.
func (d *Dispatcher) completeJob(g uint64, job int, engineJob bool) {
	d.mu.Lock()
	if g != d.gen || d.state == Idle || job != d.idx {
		d.mu.Unlock()
		return
	}
	var owed *int
	if d.boundaryPending {
		id := d.boundary
		owed = &id
		d.boundaryPending = false
	}
	hostNotify := d.notify
	d.idx++
	if d.idx < len(d.pending) {
		if engineJob {
			d.swallowNil++
		}
		d.state = AwaitingBackend
		d.mu.Unlock()
		d.reportOwed(owed, hostNotify)
		d.dispatch(g)
		return
	}
	notify := d.finishLocked(journal.OutcomeDone)
	d.mu.Unlock()
	d.reportOwed(owed, hostNotify)
	if notify != nil {
		notify(nil)
	}
}

// reportOwed raises a boundary mark the backend never did, keeping the
// host's index sequence whole when a segment is skipped or drains silently.
func (d *Dispatcher) reportOwed(owed *int, notify func(id *int)) {
	if owed == nil {
		return
	}
	if d.metrics != nil {
		kind := "caller"
		if speech.IsSynthetic(*owed) {
			kind = "synthetic"
		}
		d.metrics.IndexEvents.WithLabelValues(kind).Inc()
	}
	if notify != nil {
		notify(owed)
	}
}

// Cancel stops the in-flight utterance unconditionally: pending segments
// are dropped, both sinks stop, the delegate aborts, and queued engine
// work is discarded. No further notifications fire for it.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	d.cancelLocked(journal.OutcomeCancelled)
	d.mu.Unlock()
}

func (d *Dispatcher) cancelLocked(outcome string) {
	if d.state == Idle {
		return
	}
	d.finishLocked(outcome)
	d.coord.Stop()
	if d.delegCancel != nil {
		d.delegCancel()
		d.delegCancel = nil
	}
	if d.delegate != nil {
		d.delegate.Cancel()
	}
	if d.queue != nil {
		d.queue.Stop()
	}
}

// Pause forwards to both sinks and the delegate backend. Pausing with no
// utterance in flight reports ErrNotSpeaking; unpausing is always allowed.
func (d *Dispatcher) Pause(on bool) error {
	if on && d.State() == Idle {
		return ErrNotSpeaking
	}
	d.coord.Pause(on)
	if d.delegate != nil {
		d.delegate.Pause(on)
	}
	return nil
}

// finishLocked closes out the current utterance: state returns to Idle,
// the journal row and stage samples are recorded. It returns the notifier
// to invoke (outside the lock) for a completed utterance, nil otherwise.
func (d *Dispatcher) finishLocked(outcome string) func(id *int) {
	if d.state == Idle {
		return nil
	}
	d.state = Idle
	d.pending = nil
	d.idx = 0
	d.swallowNil = 0
	utt := d.utt
	d.utt = nil

	d.count(outcome)
	if utt != nil {
		total := time.Since(utt.started)
		if outcome == journal.OutcomeDone {
			d.metrics.ObserveStage(observability.StageUtteranceDone, total)
		}
		d.record(utt, outcome, total)
	}
	if outcome == journal.OutcomeDone {
		return d.notify
	}
	return nil
}

// record writes the journal row off the hot path; failures count, never
// block speech.
func (d *Dispatcher) record(utt *utterance, outcome string, total time.Duration) {
	if d.journal == nil {
		return
	}
	rec := journal.Record{
		ID:             utt.id,
		SessionID:      utt.sessionID,
		VoiceID:        utt.voiceID,
		Segments:       utt.segments,
		NativeSegments: utt.nativeSegments,
		Chars:          utt.chars,
		SyntheticMarks: utt.syntheticMarks,
		Outcome:        outcome,
		FirstAudioMs:   utt.firstAudio.Milliseconds(),
		TotalMs:        total.Milliseconds(),
	}
	if d.journalText {
		rec.Text, _ = journal.Redact(utt.text)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.journal.RecordUtterance(ctx, rec); err != nil && d.metrics != nil {
			d.metrics.JournalErrors.Inc()
		}
	}()
}

// EngineCallbacks builds the callback pair handed to engine.Init. Audio
// routes through the coordinator; the index stream drives advancement.
func (d *Dispatcher) EngineCallbacks() engine.Callbacks {
	return engine.Callbacks{
		Audio: d.onEngineAudio,
		Index: d.onEngineIndex,
	}
}

func (d *Dispatcher) onEngineAudio(pcm []byte, sampleRate int, native bool) engine.Action {
	if len(pcm) == 0 {
		d.mu.Lock()
		if d.swallowNil > 0 {
			d.swallowNil--
			d.mu.Unlock()
			return engine.Abort
		}
		d.mu.Unlock()
		return d.coord.OnAudio(pcm, sampleRate, native)
	}
	d.observeFirstAudio()
	return d.coord.OnAudio(pcm, sampleRate, native)
}

func (d *Dispatcher) onEngineIndex(id int) engine.Action {
	d.mu.Lock()
	g := d.gen
	job := d.idx
	idle := d.state == Idle
	d.mu.Unlock()
	if idle {
		return engine.Abort
	}
	if id == 0 {
		d.completeJob(g, job, true)
		return engine.Continue
	}
	d.reportIndex(g, id)
	return engine.Continue
}

// reportIndex forwards a mark to the host. Synthetic boundary ids travel
// the same notification as caller marks; the host observes every boundary
// whether it asked for it or not.
func (d *Dispatcher) reportIndex(g uint64, id int) {
	d.mu.Lock()
	if g != d.gen || d.state == Idle {
		d.mu.Unlock()
		return
	}
	if d.boundaryPending && id == d.boundary {
		d.boundaryPending = false
	}
	notify := d.notify
	d.mu.Unlock()

	if d.metrics != nil {
		kind := "caller"
		if speech.IsSynthetic(id) {
			kind = "synthetic"
		}
		d.metrics.IndexEvents.WithLabelValues(kind).Inc()
	}
	if notify != nil {
		notify(&id)
	}
}

// Feed is the delegate backends' audio path into the coordinator.
func (d *Dispatcher) Feed(pcm []byte, sampleRate int) bool {
	if len(pcm) > 0 {
		d.observeFirstAudio()
	}
	return d.coord.OnAudio(pcm, sampleRate, false) == engine.Continue
}

// OnDrained is the coordinator's drained upcall: the completion edge for
// an engine job that signalled end-of-utterance without a terminal index.
func (d *Dispatcher) OnDrained() {
	d.mu.Lock()
	if d.state == Idle {
		d.mu.Unlock()
		return
	}
	g := d.gen
	job := d.idx
	d.mu.Unlock()
	d.completeJob(g, job, false)
}

func (d *Dispatcher) observeFirstAudio() {
	d.mu.Lock()
	utt := d.utt
	var onStarted func()
	if utt != nil && utt.firstAudio == 0 {
		utt.firstAudio = time.Since(utt.started)
		onStarted = d.onStarted
		d.metrics.ObserveFirstAudio(utt.firstAudio)
	}
	d.mu.Unlock()
	if onStarted != nil {
		onStarted()
	}
}

func (d *Dispatcher) sinceStart() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.utt == nil {
		return 0
	}
	return time.Since(d.utt.started)
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.Utterances.WithLabelValues(outcome).Inc()
	}
}

func (d *Dispatcher) countSegments(segs []speech.Segment) {
	if d.metrics == nil {
		return
	}
	for _, seg := range segs {
		d.metrics.Segments.WithLabelValues(seg.Class.Kind.String()).Inc()
	}
}
