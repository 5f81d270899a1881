package trace

import (
	"bufio"
	"fmt"
	"io"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/sim"
)

// QueueTrace writes one "seconds occupancy" line every time a queue's
// occupancy changes. It implements queue.Observer.
type QueueTrace struct {
	w     *bufio.Writer
	sched *sim.Scheduler
	err   error
}

// NewQueueTrace buffers output to w. Call Flush when done.
func NewQueueTrace(w io.Writer, sched *sim.Scheduler) *QueueTrace {
	return &QueueTrace{w: bufio.NewWriter(w), sched: sched}
}

func (t *QueueTrace) OnEnqueue(_ *core.Packet, occupancy int) { t.record(occupancy) }
func (t *QueueTrace) OnDequeue(_ *core.Packet, occupancy int) { t.record(occupancy) }
func (t *QueueTrace) OnDrop(*core.Packet, int)                {}

func (t *QueueTrace) record(occupancy int) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, "%.9f %d\n", t.sched.Now().Seconds(), occupancy)
}

// Flush writes buffered lines and returns the first error seen.
func (t *QueueTrace) Flush() error {
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}
