// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
)

// Address identifies the next hop a packet is sent towards. Point-to-point
// links ignore it beyond tracing.
type Address = netip.Addr

// EtherType is the network protocol number carried alongside a datagram.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeIPv6 EtherType = 0x86DD
)

func (e EtherType) String() string {
	switch e {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("0x%04x", uint16(e))
	}
}

// Transport protocol numbers accepted by flow classification.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FlowKey uniquely identifies a network flow using 5-tuple.
type FlowKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

func (k FlowKey) String() string {
	proto := "tcp"
	if k.Proto == ProtoUDP {
		proto = "udp"
	}
	return fmt.Sprintf("%s %s -> %s",
		proto,
		netip.AddrPortFrom(k.SrcIP, k.SrcPort),
		netip.AddrPortFrom(k.DstIP, k.DstPort))
}
