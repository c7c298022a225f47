// Package taskq serializes engine operations through one background worker.
// Speech, voice changes, and parameter updates all funnel through a single
// queue so rapid successive calls apply in submission order; execution is
// guarded by one mutex, so inline fast-path runs and the worker can never
// mutate engine state concurrently.
package taskq

import (
	"sync"
	"sync/atomic"

	"github.com/vaanilabs/vaani/internal/observability"
)

type task struct {
	fn func()
	// keepOnStop marks tasks that survive a Stop drain: parameter and voice
	// changes issued while speech is being cancelled must still apply.
	keepOnStop bool
}

// Queue is a single-worker FIFO. Zero value is not usable; construct with New.
type Queue struct {
	mu         sync.Mutex
	tasks      chan task
	quit       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	unfinished atomic.Int64
	metrics    *observability.Metrics
}

func New(capacity int, metrics *observability.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 128
	}
	q := &Queue{
		tasks:   make(chan task, capacity),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case t := <-q.tasks:
			q.mu.Lock()
			t.fn()
			q.mu.Unlock()
			q.unfinished.Add(-1)
			q.gauge()
		}
	}
}

// Do applies fn in submission order. When the queue is idle it runs inline on
// the caller's goroutine for lower latency; otherwise it is enqueued behind
// whatever is in flight. Tasks submitted through Do survive Stop.
func (q *Queue) Do(fn func()) {
	if q.closed.Load() {
		return
	}
	if q.unfinished.CompareAndSwap(0, 1) {
		q.mu.Lock()
		fn()
		q.mu.Unlock()
		q.unfinished.Add(-1)
		return
	}
	q.unfinished.Add(1)
	q.submit(task{fn: fn, keepOnStop: true})
}

// DoAsync always enqueues: synthesis must never run on the caller's
// goroutine, and it is discarded wholesale by Stop.
func (q *Queue) DoAsync(fn func()) {
	if q.closed.Load() {
		return
	}
	q.unfinished.Add(1)
	q.submit(task{fn: fn})
}

func (q *Queue) submit(t task) {
	select {
	case q.tasks <- t:
		q.gauge()
	case <-q.quit:
		q.unfinished.Add(-1)
	}
}

// Stop drains every not-yet-started task. Parameter-change tasks are
// re-enqueued in their original order so a user adjusting settings while
// speech is cancelled does not lose the change.
func (q *Queue) Stop() {
	var keep []task
drain:
	for {
		select {
		case t := <-q.tasks:
			if t.keepOnStop {
				keep = append(keep, t)
			} else {
				q.unfinished.Add(-1)
			}
		default:
			break drain
		}
	}
	for _, t := range keep {
		select {
		case q.tasks <- t:
		case <-q.quit:
			q.unfinished.Add(-1)
		}
	}
	q.gauge()
}

// Depth reports how many tasks are waiting (the running task excluded).
func (q *Queue) Depth() int { return len(q.tasks) }

// Close stops the worker. Pending tasks are dropped; submissions after Close
// are ignored.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.quit)
	})
	<-q.done
}

func (q *Queue) gauge() {
	if q.metrics != nil {
		q.metrics.TaskQueueDepth.Set(float64(len(q.tasks)))
	}
}
