// Package queue implements the bounded device transmit queue and its
// congestion signal.
package queue

import (
	"iter"

	"firestige.xyz/frr/internal/core"
)

// Observer is notified of every queue mutation with the resulting occupancy.
type Observer interface {
	OnEnqueue(pkt *core.Packet, occupancy int)
	OnDequeue(pkt *core.Packet, occupancy int)
	OnDrop(pkt *core.Packet, occupancy int)
}

// Option configures a Queue.
type Option func(*Queue)

// WithThreshold sets the congestion threshold used by Congested.
func WithThreshold(th Threshold) Option {
	return func(q *Queue) { q.threshold = th }
}

// WithObserver registers an observer. Observers run synchronously.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observers = append(q.observers, o) }
}

// Queue is a capacity-limited FIFO of packets backed by a ring buffer.
// The invariant 0 <= Len() <= Cap() always holds.
type Queue struct {
	buf       []*core.Packet
	head      int
	size      int
	threshold Threshold
	observers []Observer
}

// New creates a queue holding at most capacity packets. Capacities below
// one are raised to one.
func New(capacity int, opts ...Option) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		buf: make([]*core.Packet, capacity),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddObserver registers an observer after construction.
func (q *Queue) AddObserver(o Observer) {
	q.observers = append(q.observers, o)
}

// Len returns the current occupancy in packets.
func (q *Queue) Len() int { return q.size }

// Cap returns the capacity in packets.
func (q *Queue) Cap() int { return len(q.buf) }

// Threshold returns the congestion threshold of this queue.
func (q *Queue) Threshold() Threshold { return q.threshold }

// Congested reports whether the queue is at or above its own threshold.
func (q *Queue) Congested() bool {
	return q.threshold.Congested(q)
}

// Enqueue appends pkt at the tail. It returns false, leaving the queue
// unchanged, when the queue is full.
func (q *Queue) Enqueue(pkt *core.Packet) bool {
	if q.size == len(q.buf) {
		for _, o := range q.observers {
			o.OnDrop(pkt, q.size)
		}
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = pkt
	q.size++
	for _, o := range q.observers {
		o.OnEnqueue(pkt, q.size)
	}
	return true
}

// Dequeue removes and returns the head packet, or nil when empty.
func (q *Queue) Dequeue() *core.Packet {
	if q.size == 0 {
		return nil
	}
	pkt := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	for _, o := range q.observers {
		o.OnDequeue(pkt, q.size)
	}
	return pkt
}

// Peek returns the head packet without removing it, or nil when empty.
func (q *Queue) Peek() *core.Packet {
	if q.size == 0 {
		return nil
	}
	return q.buf[q.head]
}

// All iterates the queued packets from head to tail without mutating the
// queue. The queue must not be modified during iteration.
func (q *Queue) All() iter.Seq[*core.Packet] {
	return func(yield func(*core.Packet) bool) {
		for i := 0; i < q.size; i++ {
			if !yield(q.buf[(q.head+i)%len(q.buf)]) {
				return
			}
		}
	}
}
