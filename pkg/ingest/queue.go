package ingest

import (
	"sync"
)

// Queue is an unbounded hand-off from uploads to the promotion pipeline.
// Enqueue never blocks. The consumer obtains the receiving side once via
// Receive; after Close the remaining tasks are delivered and the channel is
// closed.
type Queue struct {
	mu       sync.Mutex
	items    []PromotionTask
	closed   bool
	signal   chan struct{}
	out      chan PromotionTask
	received bool
}

// NewQueue creates a queue and starts its delivery goroutine
func NewQueue() *Queue {
	q := &Queue{
		signal: make(chan struct{}, 1),
		out:    make(chan PromotionTask),
	}
	go q.run()
	return q
}

// Enqueue accepts a task without blocking
func (q *Queue) Enqueue(task PromotionTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, task)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Receive returns the receiving handle. It may be called only once.
func (q *Queue) Receive() <-chan PromotionTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.received {
		panic("ingest: promotion queue already has a consumer")
	}
	q.received = true
	return q.out
}

// Len returns the number of tasks not yet handed to the consumer
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting tasks. Pending tasks are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.mu.Unlock()
			<-q.signal
			q.mu.Lock()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.items[0]
		q.items[0] = PromotionTask{}
		q.items = q.items[1:]
		q.mu.Unlock()

		q.out <- task
	}
}
