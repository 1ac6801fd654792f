// Package queue serializes ledger operations into a strict FIFO.
//
// The embedded store permits one in-flight statement sequence at a time; the
// queue is the application-level mechanism enforcing that. Every public
// ledger operation, reads included, runs through the same queue so that a
// read can never interleave with an in-progress multi-statement transaction.
package queue

import "sync"

// Queue executes operations one at a time in enqueue order.
//
// Each operation holds the queue until its body completes. A failing or
// panicking operation never blocks its successors: completion is signaled in
// a defer, so the chain always advances.
//
// Pure FIFO: no priorities, no cancellation, no batching.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{} // closed when the most recently enqueued op finishes
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Run enqueues op and blocks until it has executed. Operations execute in
// the order Run was entered, with at most one in flight.
func (q *Queue) Run(op func()) {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	// Wait for every earlier operation to drain.
	if prev != nil {
		<-prev
	}

	defer close(done)
	op()
}

// Do runs op on the queue and returns its result. It exists because methods
// cannot carry type parameters.
func Do[T any](q *Queue, op func() (T, error)) (T, error) {
	var (
		value T
		err   error
	)
	q.Run(func() {
		value, err = op()
	})
	return value, err
}
