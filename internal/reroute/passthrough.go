package reroute

import "firestige.xyz/frr/internal/core"

// Passthrough never diverts. It models a device with rerouting disabled
// while keeping the policy plumbing in place.
type Passthrough struct {
	Alternates
}

// NewPassthrough creates the "none" policy.
func NewPassthrough(opts Options) *Passthrough {
	return &Passthrough{Alternates: newAlternates(NameNone, opts)}
}

func (p *Passthrough) Name() string { return NameNone }

func (p *Passthrough) HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool {
	return port.SendPacket(pkt, dest, proto)
}
