package executor

import "sync"

// TraceResult is one completed execution path: either a trace or a
// per-path error. Events are stored newest-first, exactly as the
// engine accumulated them; the consumer reverses them into
// chronological order before serialization.
type TraceResult struct {
	TaskID int
	Failed bool    // the path ended at an assertion failure
	Events []Event // reverse chronological order
	Err    error   // non-nil: the path could not be executed
}

// TraceQueue is the unbounded multi-producer single-consumer queue
// between the worker pool and the session. Close marks completion,
// which lets the consumer tell "nothing yet, producers still running"
// apart from "nothing left, all producers finished".
type TraceQueue struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	entries  []TraceResult
	closed   bool
}

// NewTraceQueue creates an empty open queue.
func NewTraceQueue() *TraceQueue {
	q := &TraceQueue{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends a result. It never blocks. Pushing after Close is a
// bug in the pool's completion accounting and panics.
func (q *TraceQueue) Push(r TraceResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		panic("executor: push on closed trace queue")
	}
	q.entries = append(q.entries, r)
	q.nonEmpty.Signal()
}

// Pop blocks until an entry is available or the queue is closed and
// drained. The second return is false only on closed-and-drained.
func (q *TraceQueue) Pop() (TraceResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}
	if len(q.entries) == 0 {
		return TraceResult{}, false
	}
	r := q.entries[0]
	q.entries = q.entries[1:]
	return r, true
}

// Close marks the queue complete: no producer will push again. Entries
// already queued remain poppable.
func (q *TraceQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.nonEmpty.Broadcast()
}
