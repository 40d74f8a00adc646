package session

import (
	"sync"

	"github.com/roach88/formsync/internal/engine"
)

// requestKind distinguishes work items for the session loop.
type requestKind int

const (
	requestApply requestKind = iota + 1
	requestSave
)

// result is the loop's reply to a request.
type result struct {
	transition engine.Transition
	err        error
}

// request is one unit of work for the single writer. reply is buffered so
// the loop never blocks on a caller that stopped waiting; it is nil for
// autosave ticks.
type request struct {
	kind  requestKind
	event engine.Event
	reply chan result
}

// requestQueue is an unbounded FIFO of requests. Producers (editors and the
// autosave ticker) enqueue from any goroutine while the session loop
// dequeues. The signal channel lets the loop wait with a select on its
// context.
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds r to the back of the queue. Returns false if the queue is
// closed.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)

	// Coalesce signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}
	r := q.requests[0]
	q.requests[0] = request{}
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that fires when requests may be available. It is
// closed by Close.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Closed reports whether Close has been called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the loop. Safe to call twice.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
