package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/delegate"
	"github.com/vaanilabs/vaani/internal/engine"
	"github.com/vaanilabs/vaani/internal/journal"
	"github.com/vaanilabs/vaani/internal/script"
	"github.com/vaanilabs/vaani/internal/speech"
	"github.com/vaanilabs/vaani/internal/synth"
	"github.com/vaanilabs/vaani/internal/taskq"
	"github.com/vaanilabs/vaani/internal/voices"
)

type notifications struct {
	mu    sync.Mutex
	ids   []int
	dones int
}

func (n *notifications) notify(id *int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id == nil {
		n.dones++
		return
	}
	n.ids = append(n.ids, *id)
}

func (n *notifications) snapshot() ([]int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.ids...), n.dones
}

type harness struct {
	mock    *engine.Mock
	deleg   delegate.Backend
	d       *Dispatcher
	journal *journal.MemoryStore
	notes   *notifications
}

// newHarness builds the full pipeline against the mock engine and a hindi
// voice. buildDelegate receives the dispatcher feed; nil means no delegate.
func newHarness(t *testing.T, buildDelegate func(feed delegate.Feed) delegate.Backend) *harness {
	t.Helper()

	dir := t.TempDir()
	for _, suffix := range []string{".onnx", ".onnx.json"} {
		if err := os.WriteFile(filepath.Join(dir, "hi_IN-pratham-medium"+suffix), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := voices.NewCatalog(dir)
	if err != nil {
		t.Fatal(err)
	}

	q := taskq.New(16, nil)
	t.Cleanup(q.Close)

	var d *Dispatcher
	coord := audio.NewCoordinator(audio.Config{
		Factory:   func(rate int, _ audio.Emitter) audio.Sink { return audio.NewCaptureSink(rate) },
		OnDrained: func() { d.OnDrained() },
	})
	t.Cleanup(func() { _ = coord.Close() })

	mock := engine.NewMock()
	native := synth.NewBackend(synth.BackendConfig{
		Engine:      mock,
		Queue:       q,
		Catalog:     cat,
		Coordinator: coord,
	})

	var deleg delegate.Backend
	if buildDelegate != nil {
		deleg = buildDelegate(func(pcm []byte, rate int) bool { return d.Feed(pcm, rate) })
	}

	js := journal.NewMemoryStore()
	d = New(Config{
		Splitter:    speech.NewSplitter(script.Devanagari),
		Native:      native,
		Delegate:    deleg,
		Coordinator: coord,
		Queue:       q,
		Journal:     js,
		JournalText: true,
	})
	if err := mock.Init(dir, d.EngineCallbacks()); err != nil {
		t.Fatal(err)
	}
	native.SetVoice("hi_IN-pratham-medium")

	notes := &notifications{}
	d.SetNotifier(notes.notify)
	return &harness{mock: mock, deleg: deleg, d: d, journal: js, notes: notes}
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, dones := h.notes.snapshot(); dones > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("utterance did not complete")
}

func (h *harness) waitRecords(t *testing.T, n int) []journal.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recs, err := h.journal.RecentUtterances(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) >= n {
			return recs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("journal never reached %d records", n)
	return nil
}

func TestSpeakNativeCompletes(t *testing.T) {
	h := newHarness(t, nil)

	h.d.Speak("s1", speech.Request{
		speech.Text("राम और"),
		speech.IndexMark(4),
		speech.Text(" सीता"),
	})
	h.waitDone(t)

	ids, dones := h.notes.snapshot()
	if dones != 1 {
		t.Fatalf("dones = %d", dones)
	}
	if len(ids) != 1 || ids[0] != 4 {
		t.Fatalf("ids = %v, want [4]", ids)
	}
	if h.d.State() != Idle {
		t.Fatalf("state = %v after done", h.d.State())
	}
	if len(h.mock.Texts()) != 1 {
		t.Fatalf("engine got %d texts", len(h.mock.Texts()))
	}
}

func TestSpeakMixedRoutesDelegate(t *testing.T) {
	var deleg *delegate.Mock
	h := newHarness(t, func(feed delegate.Feed) delegate.Backend {
		deleg = delegate.NewMock(feed)
		return deleg
	})

	h.d.Speak("s1", speech.Request{speech.Text("राम hello सीता")})
	h.waitDone(t)

	texts := deleg.Texts()
	if len(texts) != 1 || texts[0] != "hello" {
		t.Fatalf("delegate texts = %q", texts)
	}
	if got := len(h.mock.Texts()); got != 2 {
		t.Fatalf("engine got %d texts, want 2", got)
	}

	// Every split boundary reaches the host as a normal index event, the
	// synthesized ones included.
	ids, _ := h.notes.snapshot()
	if len(ids) != 3 || ids[0] != -2 || ids[1] != -3 || ids[2] != -4 {
		t.Fatalf("ids = %v, want [-2 -3 -4]", ids)
	}
}

func TestSpeakDelegateFailureStillReportsBoundary(t *testing.T) {
	var deleg *delegate.Mock
	h := newHarness(t, func(feed delegate.Feed) delegate.Backend {
		deleg = delegate.NewMock(feed)
		return deleg
	})
	deleg.Fail(errors.New("backend down"))

	h.d.Speak("s1", speech.Request{speech.Text("राम hello सीता")})
	h.waitDone(t)

	// The skipped segment's boundary mark is raised by the dispatcher so
	// the host's index sequence stays whole.
	ids, dones := h.notes.snapshot()
	if dones != 1 {
		t.Fatalf("dones = %d", dones)
	}
	if len(ids) != 3 || ids[0] != -2 || ids[1] != -3 || ids[2] != -4 {
		t.Fatalf("ids = %v, want [-2 -3 -4]", ids)
	}
}

func TestSpeakASCIIWithoutDelegateUsesEngine(t *testing.T) {
	h := newHarness(t, nil)

	h.d.Speak("s1", speech.Request{speech.Text("hello world")})
	h.waitDone(t)

	if len(h.mock.Texts()) != 1 {
		t.Fatalf("engine got %d texts", len(h.mock.Texts()))
	}
}

func TestSpeakEmptyRequestFiresDone(t *testing.T) {
	h := newHarness(t, nil)

	h.d.Speak("s1", speech.Request{speech.CharMode(true)})

	if _, dones := h.notes.snapshot(); dones != 1 {
		t.Fatalf("dones = %d, want immediate completion", dones)
	}
	if h.d.State() != Idle {
		t.Fatalf("state = %v", h.d.State())
	}
}

// blockingDelegate parks in Speak until its context is cancelled.
type blockingDelegate struct {
	delegate.Mock
	speaking chan struct{}
}

func (b *blockingDelegate) Speak(ctx context.Context, _ []speech.Item, _ delegate.Events) error {
	select {
	case b.speaking <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestCancelStopsUtterance(t *testing.T) {
	blocking := &blockingDelegate{speaking: make(chan struct{}, 1)}
	h := newHarness(t, func(delegate.Feed) delegate.Backend { return blocking })

	h.d.Speak("s1", speech.Request{speech.Text("hello world")})
	select {
	case <-blocking.speaking:
	case <-time.After(2 * time.Second):
		t.Fatal("delegate never started")
	}

	h.d.Cancel()

	if h.d.State() != Idle {
		t.Fatalf("state = %v after cancel", h.d.State())
	}
	recs := h.waitRecords(t, 1)
	if recs[0].Outcome != journal.OutcomeCancelled {
		t.Fatalf("outcome = %q", recs[0].Outcome)
	}
	if _, dones := h.notes.snapshot(); dones != 0 {
		t.Fatal("cancelled utterance still notified completion")
	}
}

func TestSpeakCancelsInFlight(t *testing.T) {
	blocking := &blockingDelegate{speaking: make(chan struct{}, 1)}
	h := newHarness(t, func(delegate.Feed) delegate.Backend { return blocking })

	h.d.Speak("s1", speech.Request{speech.Text("hello world")})
	select {
	case <-blocking.speaking:
	case <-time.After(2 * time.Second):
		t.Fatal("delegate never started")
	}

	// Second utterance is native-only, so the blocked delegate cannot stall it.
	h.d.Speak("s2", speech.Request{speech.Text("राम")})
	h.waitDone(t)

	recs := h.waitRecords(t, 2)
	// Newest first: done, then the cancelled one.
	if recs[0].Outcome != journal.OutcomeDone || recs[1].Outcome != journal.OutcomeCancelled {
		t.Fatalf("outcomes = %q, %q", recs[0].Outcome, recs[1].Outcome)
	}
	if recs[1].SessionID != "s1" {
		t.Fatalf("cancelled session = %q", recs[1].SessionID)
	}
}

func TestJournalRecordFields(t *testing.T) {
	var deleg *delegate.Mock
	h := newHarness(t, func(feed delegate.Feed) delegate.Backend {
		deleg = delegate.NewMock(feed)
		return deleg
	})

	h.d.Speak("s9", speech.Request{speech.Text("राम hello सीता")})
	h.waitDone(t)

	recs := h.waitRecords(t, 1)
	rec := recs[0]
	if rec.SessionID != "s9" || rec.VoiceID != "hi_IN-pratham-medium" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Segments != 3 || rec.NativeSegments != 2 {
		t.Fatalf("segments = %d native = %d", rec.Segments, rec.NativeSegments)
	}
	if rec.SyntheticMarks != 3 {
		t.Fatalf("synthetic marks = %d", rec.SyntheticMarks)
	}
	if rec.Text == "" {
		t.Fatal("journal text missing with JournalText enabled")
	}
}

func TestPauseWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.d.Pause(true); err != ErrNotSpeaking {
		t.Fatalf("err = %v, want ErrNotSpeaking", err)
	}
	if err := h.d.Pause(false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
}
