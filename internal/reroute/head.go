package reroute

import (
	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/core/frame"
)

// RerouteHead diverts the oldest waiting packet instead of the newcomer when
// the primary port is congested. The head packet has waited longest, so
// moving it to the alternate bounds the queueing delay seen by any packet.
//
// The returned value is the outcome of the diversion only. The newcomer's
// primary result is accounted for by the port.
type RerouteHead struct {
	Alternates
}

// NewRerouteHead creates the "reroute-head" policy.
func NewRerouteHead(opts Options) *RerouteHead {
	return &RerouteHead{Alternates: newAlternates(NameRerouteHead, opts)}
}

func (p *RerouteHead) Name() string { return NameRerouteHead }

func (p *RerouteHead) HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool {
	if !port.IsCongested() {
		return port.SendPacket(pkt, dest, proto)
	}

	head := port.Queue().Dequeue()
	sent := port.SendPacket(pkt, dest, proto)
	if head == nil {
		return sent
	}

	// Queued packets carry link framing; the alternate adds its own.
	headProto, err := frame.Strip(head)
	if err != nil {
		p.log().Warn("dropping unframed head packet", "uid", head.UID, "err", err)
		return false
	}
	return p.Reroute(head, dest, headProto) == nil
}
