package reroute

import (
	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/queue"
)

// SafeRerouteTail behaves like AlwaysRerouteNew but keeps the packet on the
// primary path when the alternate is itself congested.
type SafeRerouteTail struct {
	Alternates
}

// NewSafeRerouteTail creates the "safe-tail" policy.
func NewSafeRerouteTail(opts Options) *SafeRerouteTail {
	return &SafeRerouteTail{Alternates: newAlternates(NameSafeTail, opts)}
}

func (p *SafeRerouteTail) Name() string { return NameSafeTail }

func (p *SafeRerouteTail) HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool {
	if !port.IsCongested() {
		return port.SendPacket(pkt, dest, proto)
	}
	// Without an alternate the reroute below fails, as for AlwaysRerouteNew.
	if alt := p.First(); alt != nil && alt.Queue() != nil && queue.IsCongested(alt.Queue()) {
		return port.SendPacket(pkt, dest, proto)
	}
	return p.Reroute(pkt, dest, proto) == nil
}
