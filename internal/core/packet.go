// Package core defines core data structures with zero external dependencies.
package core

import (
	"sync/atomic"
	"time"
)

var nextUID atomic.Uint64

// Packet is the unit moved between queues, policies and devices.
//
// Data holds the bytes as currently framed: a bare IPv4/IPv6 datagram when
// handed to a rerouting policy, link framing plus datagram while it sits in
// a device queue. Packets are moved by pointer; only the channel copies.
type Packet struct {
	UID     uint64
	Data    []byte
	Created time.Duration // Virtual time the packet entered the network
}

// NewPacket wraps data in a packet with a fresh UID.
func NewPacket(data []byte, created time.Duration) *Packet {
	return &Packet{
		UID:     nextUID.Add(1),
		Data:    data,
		Created: created,
	}
}

// Size returns the packet length in bytes, framing included.
func (p *Packet) Size() int {
	return len(p.Data)
}

// Copy returns an independent copy sharing the UID.
func (p *Packet) Copy() *Packet {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Packet{
		UID:     p.UID,
		Data:    data,
		Created: p.Created,
	}
}
