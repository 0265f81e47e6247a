package client

import (
	"errors"
	"sync"

	"sampletrader/wire"
)

// ErrQueueClosed is returned by Push after Close, and by Pop once every
// message pushed before Close has been handed out.
var ErrQueueClosed = errors.New("outbound queue closed")

// Queue is an unbounded FIFO of outbound frames with an explicit close
// signal. It has one producer path and one consumer.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []wire.Outbound
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends msg. It never blocks.
func (q *Queue) Push(msg wire.Outbound) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
	return nil
}

// Close marks the end of the stream. Pending messages are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop blocks until a message is available or the queue is closed and empty.
func (q *Queue) Pop() (wire.Outbound, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, ErrQueueClosed
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, nil
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
