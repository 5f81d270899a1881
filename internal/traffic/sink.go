package traffic

import (
	"encoding/binary"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/core/classifier"
	"firestige.xyz/frr/internal/node"
	"firestige.xyz/frr/internal/sim"
)

// FlowStats is what a sink observed for one flow.
type FlowStats struct {
	Key          core.FlowKey
	Packets      uint64
	Bytes        uint64
	Reordered    uint64 // arrivals carrying a lower sequence than one already seen
	FirstArrival time.Duration
	LastArrival  time.Duration
	TotalDelay   time.Duration
	MaxDelay     time.Duration

	highest uint64
}

// MeanDelay returns the average one-way delay.
func (f FlowStats) MeanDelay() time.Duration {
	if f.Packets == 0 {
		return 0
	}
	return f.TotalDelay / time.Duration(f.Packets)
}

// Sink accounts for every datagram delivered to the nodes it is attached
// to. Datagrams that are neither TCP nor UDP are counted as ignored.
type Sink struct {
	sched      *sim.Scheduler
	classifier *classifier.Classifier
	flows      map[core.FlowKey]*FlowStats
	order      []core.FlowKey
	ignored    uint64
}

// NewSink creates a sink reading the virtual clock from sched.
func NewSink(sched *sim.Scheduler) *Sink {
	return &Sink{
		sched:      sched,
		classifier: classifier.New(),
		flows:      make(map[core.FlowKey]*FlowStats),
	}
}

// Attach makes s the local handler of n.
func (s *Sink) Attach(n *node.Node) {
	n.SetLocalHandler(s.Handle)
}

// Handle implements node.LocalHandler.
func (s *Sink) Handle(_ *node.Node, pkt *core.Packet, _ core.EtherType) {
	key, err := s.classifier.Classify(pkt)
	if err != nil {
		s.ignored++
		return
	}

	seq := uint64(0)
	switch l := s.classifier.Transport().(type) {
	case *layers.TCP:
		seq = uint64(l.Seq)
	case *layers.UDP:
		if len(l.Payload) >= seqLen {
			seq = binary.BigEndian.Uint64(l.Payload)
		}
	}

	now := s.sched.Now()
	fs, ok := s.flows[key]
	if !ok {
		fs = &FlowStats{Key: key, FirstArrival: now}
		s.flows[key] = fs
		s.order = append(s.order, key)
	}
	if fs.Packets > 0 && seq < fs.highest {
		fs.Reordered++
	} else {
		fs.highest = seq
	}
	fs.Packets++
	fs.Bytes += uint64(pkt.Size())
	fs.LastArrival = now
	delay := now - pkt.Created
	fs.TotalDelay += delay
	fs.MaxDelay = max(fs.MaxDelay, delay)
}

// Flow returns the statistics for key.
func (s *Sink) Flow(key core.FlowKey) (FlowStats, bool) {
	fs, ok := s.flows[key]
	if !ok {
		return FlowStats{}, false
	}
	return *fs, true
}

// Flows returns all observed flows in first-arrival order.
func (s *Sink) Flows() []FlowStats {
	out := make([]FlowStats, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.flows[k])
	}
	return out
}

// Ignored returns the number of datagrams that could not be classified.
func (s *Sink) Ignored() uint64 { return s.ignored }
