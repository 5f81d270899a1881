// Package sim provides a single-threaded discrete-event scheduler driven by
// a virtual clock.
package sim

import (
	"container/heap"
	"context"
	"log/slog"
	"time"
)

// Forever is the largest virtual time.
const Forever = time.Duration(1<<63 - 1)

// EventID identifies a scheduled event so it can be cancelled.
type EventID uint64

type event struct {
	at        time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	index     int
}

// eventHeap orders events by time, then by scheduling order.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	ev := x.(*event)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	ev.index = -1
	return ev
}

// Scheduler runs events in virtual time order on the calling goroutine.
// Events scheduled for the same instant run in the order they were
// scheduled. A Scheduler is not safe for concurrent use.
type Scheduler struct {
	now     time.Duration
	seq     uint64
	events  eventHeap
	pending map[EventID]*event
	ran     uint64
}

// NewScheduler returns a scheduler with its clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[EventID]*event)}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration { return s.now }

// Executed returns the number of events run so far.
func (s *Scheduler) Executed() uint64 { return s.ran }

// Pending returns the number of events waiting to run.
func (s *Scheduler) Pending() int { return len(s.pending) }

// Schedule runs fn after delay. Negative delays are treated as zero.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(s.now+delay, fn)
}

// ScheduleAt runs fn at the absolute virtual time at, or now if at is in
// the past.
func (s *Scheduler) ScheduleAt(at time.Duration, fn func()) EventID {
	if at < s.now {
		at = s.now
	}
	s.seq++
	ev := &event{at: at, seq: s.seq, fn: fn}
	heap.Push(&s.events, ev)
	id := EventID(s.seq)
	s.pending[id] = ev
	return id
}

// Cancel prevents a pending event from running. It reports whether the
// event was still pending.
func (s *Scheduler) Cancel(id EventID) bool {
	ev, ok := s.pending[id]
	if !ok {
		return false
	}
	ev.cancelled = true
	delete(s.pending, id)
	return true
}

// Run executes events until none remain, the next event lies beyond until,
// or ctx is done. The clock is left at the last executed event, or at
// until when the run was bounded by it. ctx is checked between events.
func (s *Scheduler) Run(ctx context.Context, until time.Duration) error {
	for s.events.Len() > 0 {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation interrupted", "at", s.now, "err", err)
			return err
		}
		next := s.events[0]
		if next.at > until {
			s.now = until
			return nil
		}
		heap.Pop(&s.events)
		if next.cancelled {
			continue
		}
		delete(s.pending, EventID(next.seq))
		s.now = next.at
		s.ran++
		next.fn()
	}
	if until != Forever && until > s.now {
		s.now = until
	}
	return nil
}

// Step runs the next pending event, if any, and reports whether one ran.
func (s *Scheduler) Step() bool {
	for s.events.Len() > 0 {
		ev := heap.Pop(&s.events).(*event)
		if ev.cancelled {
			continue
		}
		delete(s.pending, EventID(ev.seq))
		s.now = ev.at
		s.ran++
		ev.fn()
		return true
	}
	return false
}
