package reroute

import (
	"errors"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/core/classifier"
)

// PerFlowReroute counts packets per flow and, on congestion, moves the
// heaviest flows to the alternate as a whole so that no flow is split
// across paths mid-stream. Selection only happens while no flow is
// diverted; diverted flows stay diverted for the policy's lifetime.
type PerFlowReroute struct {
	Alternates

	classifier  *classifier.Classifier
	maxDiverted int

	order    []core.FlowKey // first-seen order, breaks count ties
	counts   map[core.FlowKey]uint64
	diverted map[core.FlowKey]struct{}
	selected []core.FlowKey
}

// NewPerFlowReroute creates the "reroute-flow" policy.
func NewPerFlowReroute(opts Options) *PerFlowReroute {
	n := opts.MaxDiverted
	if n < 1 {
		n = 1
	}
	return &PerFlowReroute{
		Alternates:  newAlternates(NameRerouteFlow, opts),
		classifier:  classifier.New(),
		maxDiverted: n,
		counts:      make(map[core.FlowKey]uint64),
		diverted:    make(map[core.FlowKey]struct{}),
	}
}

func (p *PerFlowReroute) Name() string { return NameRerouteFlow }

func (p *PerFlowReroute) HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool {
	key, err := p.classifier.Classify(pkt)
	if err != nil {
		if !errors.Is(err, core.ErrUnsupportedTransport) {
			p.log().Debug("unclassifiable packet", "uid", pkt.UID, "err", err)
		}
		return port.SendPacket(pkt, dest, proto)
	}

	p.count(key)
	if len(p.diverted) == 0 && port.IsCongested() {
		p.selectFlows()
	}

	if _, ok := p.diverted[key]; ok {
		return p.Reroute(pkt, dest, proto) == nil
	}
	return port.SendPacket(pkt, dest, proto)
}

func (p *PerFlowReroute) count(key core.FlowKey) {
	if _, seen := p.counts[key]; !seen {
		p.order = append(p.order, key)
	}
	p.counts[key]++
}

// selectFlows diverts up to maxDiverted of the heaviest flows not yet
// diverted.
func (p *PerFlowReroute) selectFlows() {
	for i := 0; i < p.maxDiverted; i++ {
		var (
			best  core.FlowKey
			most  uint64
			found bool
		)
		for _, key := range p.order {
			if _, ok := p.diverted[key]; ok {
				continue
			}
			if c := p.counts[key]; !found || c > most {
				best, most, found = key, c, true
			}
		}
		if !found {
			return
		}
		p.diverted[best] = struct{}{}
		p.selected = append(p.selected, best)
		p.log().Info("flow diverted", "flow", best.String(), "packets", most)
	}
}

// Diverted returns the diverted flows in the order they were selected.
func (p *PerFlowReroute) Diverted() []core.FlowKey {
	return append([]core.FlowKey(nil), p.selected...)
}

// IsDiverted reports whether key is currently diverted.
func (p *PerFlowReroute) IsDiverted(key core.FlowKey) bool {
	_, ok := p.diverted[key]
	return ok
}

// Count returns the number of packets observed for key.
func (p *PerFlowReroute) Count(key core.FlowKey) uint64 {
	return p.counts[key]
}
