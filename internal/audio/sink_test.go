package audio

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStreamSinkEmitsInOrderAndPaces(t *testing.T) {
	var mu sync.Mutex
	var got []string
	emit := func(pcm []byte) {
		mu.Lock()
		got = append(got, string(pcm[:1]))
		mu.Unlock()
	}
	s := NewStreamSink(16000, emit)
	defer s.Close()

	start := time.Now()
	for _, c := range []string{"a", "b", "c"} {
		if err := s.Feed([]byte(strings.Repeat(c, 320))); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	s.Sync()
	elapsed := time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, "") != "abc" {
		t.Fatalf("emitted %v, want chunks a b c in order", got)
	}
	// Three 160-sample chunks at 16kHz are 30ms of audio; Sync must model
	// that drain.
	if elapsed < 25*time.Millisecond {
		t.Fatalf("Sync returned after %v, want at least ~30ms of pacing", elapsed)
	}
}

func TestStreamSinkStopDiscardsQueuedAudio(t *testing.T) {
	emitted := make(chan string, 8)
	s := NewStreamSink(16000, func(pcm []byte) { emitted <- string(pcm) })
	defer s.Close()

	s.Pause(true)
	if err := s.Feed([]byte("xx")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.Feed([]byte("yy")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	s.Stop()
	s.Pause(false)
	s.Sync()

	select {
	case ch := <-emitted:
		t.Fatalf("chunk %q emitted after Stop", ch)
	default:
	}
}

func TestStreamSinkStopCutsPacingShort(t *testing.T) {
	started := make(chan struct{})
	s := NewStreamSink(16000, func([]byte) { close(started) })
	defer s.Close()

	if err := s.Feed(make([]byte, 32000)); err != nil { // one second of audio
		t.Fatalf("Feed: %v", err)
	}
	<-started
	stopAt := time.Now()
	s.Stop()
	s.Sync()
	if elapsed := time.Since(stopAt); elapsed > 500*time.Millisecond {
		t.Fatalf("Sync after Stop took %v, want prompt return", elapsed)
	}
}

func TestStreamSinkPauseHoldsPlayback(t *testing.T) {
	emitted := make(chan string, 8)
	s := NewStreamSink(16000, func(pcm []byte) { emitted <- string(pcm) })
	defer s.Close()

	s.Pause(true)
	if err := s.Feed([]byte("zz")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	select {
	case <-emitted:
		t.Fatal("chunk emitted while paused")
	case <-time.After(30 * time.Millisecond):
	}

	s.Pause(false)
	select {
	case got := <-emitted:
		if got != "zz" {
			t.Fatalf("emitted %q, want %q", got, "zz")
		}
	case <-time.After(time.Second):
		t.Fatal("chunk not emitted after resume")
	}
	s.Sync()
}

func TestStreamSinkClose(t *testing.T) {
	s := NewStreamSink(16000, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Feed([]byte("ab")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("Feed after Close = %v, want ErrSinkClosed", err)
	}
	s.Sync() // must not block on a closed sink
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCaptureSinkCollectsAndRecords(t *testing.T) {
	c := NewCaptureSink(22050)
	if got := c.SampleRate(); got != 22050 {
		t.Fatalf("SampleRate = %d, want 22050", got)
	}
	if err := c.Feed([]byte("ab")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.Sync()
	if err := c.Feed([]byte("cd")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.Idle()

	if got := string(c.Bytes()); got != "abcd" {
		t.Fatalf("Bytes = %q, want %q", got, "abcd")
	}
	want := "feed:2 | sync | feed:2 | idle"
	if got := strings.Join(c.Events(), " | "); got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}

	c.Stop()
	if got := c.Bytes(); len(got) != 0 {
		t.Fatalf("Bytes after Stop = %q, want empty", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Feed([]byte("ef")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("Feed after Close = %v, want ErrSinkClosed", err)
	}
}
