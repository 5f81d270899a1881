package reroute

import (
	"firestige.xyz/frr/internal/core"
)

// AlwaysRerouteNew sends every packet that arrives while the primary port
// is congested to the alternate, whatever the alternate's load.
type AlwaysRerouteNew struct {
	Alternates
}

// NewAlwaysRerouteNew creates the "lfa" policy.
func NewAlwaysRerouteNew(opts Options) *AlwaysRerouteNew {
	return &AlwaysRerouteNew{Alternates: newAlternates(NameLFA, opts)}
}

func (p *AlwaysRerouteNew) Name() string { return NameLFA }

func (p *AlwaysRerouteNew) HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool {
	if !port.IsCongested() {
		return port.SendPacket(pkt, dest, proto)
	}
	return p.Reroute(pkt, dest, proto) == nil
}
