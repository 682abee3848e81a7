// Package events carries notifications from the sync core to frontends.
//
// Publishing never blocks: when the consumer falls behind, the oldest
// events are dropped. Frontends treat the stream as advisory and
// reconcile from the registry when they need exact state.
package events

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindSyncStarted      Kind = "sync_started"
	KindSyncFinished     Kind = "sync_finished"
	KindDownloadStarted  Kind = "download_started"
	KindDownloadFinished Kind = "download_finished"
	KindBatchComplete    Kind = "batch_complete"
	KindRefreshRequested Kind = "refresh_requested"
	KindConflictDetected Kind = "conflict_detected"
	KindJobAdded         Kind = "job_added"
	KindJobRemoved       Kind = "job_removed"
)

// Event is a single notification.
type Event struct {
	Kind    Kind
	JobID   string
	Path    string
	Message string
	Err     string
	Time    time.Time
}

// Queue is a bounded event stream with lossy, non-blocking publish.
type Queue struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewQueue returns a queue buffering up to depth events.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{ch: make(chan Event, depth)}
}

// C returns the receive channel. It is closed by Close.
func (q *Queue) C() <-chan Event {
	return q.ch
}

// Publish enqueues ev, discarding the oldest queued event when the
// buffer is full.
func (q *Queue) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for {
		select {
		case q.ch <- ev:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// Close shuts the queue down. Publish becomes a no-op and C is closed
// once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
