package taskq

import (
	"testing"
	"time"
)

func TestDoRunsInlineWhenIdle(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	ran := false
	q.Do(func() { ran = true })
	if !ran {
		t.Fatalf("idle Do did not run synchronously")
	}
}

func TestDoAsyncPreservesSubmissionOrder(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	got := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		q.DoAsync(func() { got <- i })
	}
	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("task order: got %d, want %d", v, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for task %d", want)
		}
	}
}

func TestDoQueuesBehindBusyWorker(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	gate := make(chan struct{})
	q.DoAsync(func() { <-gate })

	ran := make(chan struct{})
	q.Do(func() { close(ran) })
	select {
	case <-ran:
		t.Fatalf("Do ran while the worker was busy")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("queued Do never ran after the worker freed up")
	}
}

func TestStopDiscardsSpeechButKeepsParameterChanges(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	q.DoAsync(func() { close(started); <-gate })
	<-started

	ran := make(chan string, 2)
	q.DoAsync(func() { ran <- "speech" })
	q.Do(func() { ran <- "param" })

	q.Stop()
	close(gate)

	select {
	case v := <-ran:
		if v != "param" {
			t.Fatalf("first surviving task = %q, want %q", v, "param")
		}
	case <-time.After(time.Second):
		t.Fatalf("parameter task did not survive Stop")
	}
	select {
	case v := <-ran:
		t.Fatalf("discarded task still ran: %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDepthCountsWaitingTasks(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	q.DoAsync(func() { close(started); <-gate })
	<-started
	q.DoAsync(func() {})
	q.DoAsync(func() {})

	if d := q.Depth(); d != 2 {
		t.Fatalf("Depth() = %d, want 2", d)
	}
	close(gate)
}

func TestCloseIsIdempotentAndDropsLateWork(t *testing.T) {
	q := New(8, nil)
	q.Close()
	q.Close()

	q.Do(func() { t.Fatalf("Do ran after Close") })
	q.DoAsync(func() { t.Fatalf("DoAsync ran after Close") })
	time.Sleep(20 * time.Millisecond)
}
