package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestAwaitAckSkipsStaleAcks(t *testing.T) {
	p := NewProc(ProcConfig{})
	p.acks <- procAck{ID: 1, Code: int(StatusNotFound)}
	p.acks <- procAck{ID: 2, Code: int(StatusOK)}
	if st := p.awaitAck(2, time.Second); st != StatusOK {
		t.Fatalf("awaitAck = %v, want %v", st, StatusOK)
	}
}

func TestAwaitAckTimesOut(t *testing.T) {
	p := NewProc(ProcConfig{})
	if st := p.awaitAck(1, 10*time.Millisecond); st != StatusInternalError {
		t.Fatalf("awaitAck = %v, want %v", st, StatusInternalError)
	}
}

func TestAwaitAckFailsWhenReaderExits(t *testing.T) {
	p := NewProc(ProcConfig{})
	close(p.readerDone)
	if st := p.awaitAck(1, time.Second); st != StatusInternalError {
		t.Fatalf("awaitAck = %v, want %v", st, StatusInternalError)
	}
}

func TestHandleEventRoutesCallbacks(t *testing.T) {
	p := NewProc(ProcConfig{})
	log := &eventLog{}
	p.cb = log.callbacks()

	events := []procEvent{
		{Type: "ack", ID: 9, Code: int(StatusBufferFull)},
		{Type: "audio", PCM: base64.StdEncoding.EncodeToString([]byte("राम\x00")), SampleRate: 22050, Native: true},
		{Type: "index", Mark: -3},
		{Type: "audio", Native: true},
	}
	for _, ev := range events {
		if err := p.handleEvent(ev); err != nil {
			t.Fatalf("handleEvent(%v): %v", ev.Type, err)
		}
	}

	want := "audio:राम:native=true | index:-3 | audio:end"
	if got := log.String(); got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
	if st := p.awaitAck(9, time.Second); st != StatusBufferFull {
		t.Fatalf("awaitAck = %v, want the buffered ack %v", st, StatusBufferFull)
	}
}

func TestHandleEventAbortWritesAbortOp(t *testing.T) {
	p := NewProc(ProcConfig{})
	buf := &bytes.Buffer{}
	p.stdin = nopWriteCloser{buf}
	p.cb = Callbacks{Index: func(int) Action { return Abort }}

	if err := p.handleEvent(procEvent{Type: "index", Mark: 5}); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}
	if !strings.Contains(buf.String(), `"op":"abort"`) {
		t.Fatalf("stdin = %q, want an abort op", buf.String())
	}
}

func TestHandleEventRejectsBadAudioPayload(t *testing.T) {
	p := NewProc(ProcConfig{})
	p.cb = Callbacks{Audio: func([]byte, int, bool) Action { return Continue }}
	if err := p.handleEvent(procEvent{Type: "audio", PCM: "not-base64!"}); err == nil {
		t.Fatal("expected error for corrupt audio payload")
	}
}

func TestWriteEncodesOpsAsJSONLines(t *testing.T) {
	p := NewProc(ProcConfig{})
	buf := &bytes.Buffer{}
	p.stdin = nopWriteCloser{buf}

	err := p.write(procOp{Op: "synthesize", ID: 3, Text: "राम<mark -2>", LengthScale: 1.5, Volume: 0.8})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("op line %q not newline-terminated", line)
	}
	var decoded struct {
		Op          string  `json:"op"`
		ID          int64   `json:"id"`
		Text        string  `json:"text"`
		LengthScale float64 `json:"length_scale"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode op line: %v", err)
	}
	if decoded.Op != "synthesize" || decoded.ID != 3 || decoded.Text != "राम<mark -2>" || decoded.LengthScale != 1.5 {
		t.Fatalf("decoded op = %+v", decoded)
	}
}

func TestTailBufferKeepsRecentOutput(t *testing.T) {
	tb := newTailBuffer(8)
	if _, err := tb.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := tb.String(); got != "23456789" {
		t.Fatalf("tail = %q, want %q", got, "23456789")
	}
}
