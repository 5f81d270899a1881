// Package traffic generates datagram flows and measures what arrives.
package traffic

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
)

// Protocol is the transport protocol of a flow.
type Protocol string

const (
	UDP Protocol = "udp"
	TCP Protocol = "tcp"
)

// Number returns the IP protocol number.
func (p Protocol) Number() uint8 {
	if p == TCP {
		return core.ProtoTCP
	}
	return core.ProtoUDP
}

// seqLen is the size of the sequence number carried at the start of every
// UDP payload.
const seqLen = 8

// Flow describes one constant-rate stream of datagrams.
type Flow struct {
	Name       string
	Src, Dst   netip.Addr
	SrcPort    uint16
	DstPort    uint16
	Protocol   Protocol
	PacketSize int // transport payload bytes

	// Rate paces whole datagrams: the gap between two packets is the time
	// Rate needs to carry DatagramSize bytes, IP and transport headers
	// included. The payload rate is therefore slightly below Rate.
	Rate link.DataRate

	Start    time.Duration
	Stop     time.Duration // zero runs until the simulation ends
	MaxBytes uint64        // payload budget, zero is unlimited

	// OnTime and OffTime alternate sending and silent periods. A zero
	// OffTime sends continuously.
	OnTime  time.Duration
	OffTime time.Duration
}

// Key returns the 5-tuple every packet of the flow carries.
func (f Flow) Key() core.FlowKey {
	return core.FlowKey{
		SrcIP:   f.Src,
		DstIP:   f.Dst,
		SrcPort: f.SrcPort,
		DstPort: f.DstPort,
		Proto:   f.Protocol.Number(),
	}
}

// DatagramSize returns the size of every datagram the flow emits.
func (f Flow) DatagramSize() int {
	n := f.PacketSize + 20 // IPv4 without options
	if f.Src.Is6() {
		n = f.PacketSize + 40
	}
	if f.Protocol == TCP {
		return n + 20 // TCP without options
	}
	return n + 8
}

// Validate checks that the flow can be generated.
func (f Flow) Validate() error {
	switch {
	case f.Protocol != UDP && f.Protocol != TCP:
		return fmt.Errorf("flow %s: protocol %q: %w", f.Name, f.Protocol, core.ErrUnsupportedTransport)
	case !f.Src.IsValid() || !f.Dst.IsValid():
		return fmt.Errorf("flow %s: source and destination addresses are required: %w", f.Name, core.ErrConfigInvalid)
	case f.Src.Is4() != f.Dst.Is4():
		return fmt.Errorf("flow %s: mixed address families: %w", f.Name, core.ErrConfigInvalid)
	case f.Rate == 0:
		return fmt.Errorf("flow %s: rate must be positive: %w", f.Name, core.ErrConfigInvalid)
	case f.PacketSize < seqLen || f.PacketSize > 65000:
		return fmt.Errorf("flow %s: packet size %d out of range [%d, 65000]: %w", f.Name, f.PacketSize, seqLen, core.ErrConfigInvalid)
	case !f.Rate.Representable(f.DatagramSize()):
		return fmt.Errorf("flow %s: rate %s sends %d-byte datagrams less than 1ns apart: %w", f.Name, f.Rate, f.DatagramSize(), core.ErrConfigInvalid)
	case f.Stop != 0 && f.Stop <= f.Start:
		return fmt.Errorf("flow %s: stop %s not after start %s: %w", f.Name, f.Stop, f.Start, core.ErrConfigInvalid)
	case f.OffTime > 0 && f.OnTime <= 0:
		return fmt.Errorf("flow %s: on time required with off time: %w", f.Name, core.ErrConfigInvalid)
	}
	return nil
}
