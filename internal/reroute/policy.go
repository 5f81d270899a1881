// Package reroute implements congestion-triggered fast-reroute policies.
//
// A Policy is attached to one outbound port and decides, packet by packet,
// whether a packet leaves on the primary path or is diverted onto the first
// registered alternate target. All policies share the same congestion
// signal (queue.IsCongested) and the same diversion primitive
// (Alternates.Reroute).
package reroute

import (
	"fmt"
	"log/slog"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/queue"
)

// Target is an alternate next hop a policy may divert packets to.
type Target interface {
	Name() string
	// SendPacket frames and enqueues pkt. It returns false when the
	// target's queue is full.
	SendPacket(pkt *core.Packet, dest core.Address, proto core.EtherType) bool
	Queue() *queue.Queue
}

// Port is the outbound interface a policy makes decisions for. Its
// SendPacket sends on the primary path.
type Port interface {
	Target
	IsCongested() bool
}

// Policy decides the forwarding path of every outbound packet of a port.
type Policy interface {
	// Name returns the registry name of the policy.
	Name() string

	// AddAlternateTarget appends t to the ordered alternate list. Only the
	// first registered target is used for diversion.
	AddAlternateTarget(t Target)

	// HandleOutboundPacket is called exactly once per outbound packet. It
	// returns true iff the packet was handed to some forwarding path.
	HandleOutboundPacket(pkt *core.Packet, dest core.Address, proto core.EtherType, port Port) bool
}

// Event describes one diversion attempt.
type Event struct {
	Packet *core.Packet
	Bytes  int    // datagram size before framing
	Target string // empty when no alternate was registered
	Err    error
}

// Alternates holds the ordered alternate targets of a policy and implements
// the diversion primitive shared by every variant.
type Alternates struct {
	targets []Target
	hook    func(Event)
	logger  *slog.Logger
}

func newAlternates(policy string, opts Options) Alternates {
	return Alternates{
		hook:   opts.Hook,
		logger: slog.Default().With("policy", policy),
	}
}

// AddAlternateTarget appends t to the alternate list.
func (a *Alternates) AddAlternateTarget(t Target) {
	a.targets = append(a.targets, t)
}

// First returns the first registered target, or nil.
func (a *Alternates) First() Target {
	if len(a.targets) == 0 {
		return nil
	}
	return a.targets[0]
}

// Targets returns the registered targets in registration order.
func (a *Alternates) Targets() []Target {
	return append([]Target(nil), a.targets...)
}

// Reroute sends pkt on the first alternate target. It fails with
// core.ErrNoAlternate when none is registered and with core.ErrQueueFull
// when the target rejects the packet.
func (a *Alternates) Reroute(pkt *core.Packet, dest core.Address, proto core.EtherType) error {
	ev := Event{Packet: pkt, Bytes: pkt.Size()}
	t := a.First()
	switch {
	case t == nil:
		ev.Err = core.ErrNoAlternate
	default:
		ev.Target = t.Name()
		if !t.SendPacket(pkt, dest, proto) {
			ev.Err = fmt.Errorf("reroute via %s: %w", t.Name(), core.ErrQueueFull)
		}
	}

	a.log().Debug("reroute", "uid", pkt.UID, "via", ev.Target, "err", ev.Err)
	if a.hook != nil {
		a.hook(ev)
	}
	return ev.Err
}

func (a *Alternates) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}
