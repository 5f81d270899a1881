// Package node implements hosts and routers: a set of link devices, a
// static longest-prefix-match forwarding table and local delivery.
package node

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"

	"github.com/gaissmai/bart"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
)

// LocalHandler receives datagrams addressed to the node.
type LocalHandler func(n *Node, pkt *core.Packet, proto core.EtherType)

// Stats counts datagrams handled by the network layer of a node.
type Stats struct {
	Originated uint64
	Forwarded  uint64
	Delivered  uint64
	NoRoute    uint64
	TTLExpired uint64
	Malformed  uint64
	SendFailed uint64 // the outbound device refused the datagram
}

// Node is a network-layer endpoint. It must only be used from the
// scheduler goroutine driving its devices.
type Node struct {
	name    string
	addrs   []netip.Addr
	devices []*link.Device
	routes  bart.Table[*link.Device]
	local   LocalHandler
	stats   Stats
	logger  *slog.Logger

	ip4 layers.IPv4
	ip6 layers.IPv6
}

// New creates a node without devices or routes.
func New(name string) *Node {
	return &Node{
		name:   name,
		logger: slog.Default().With("node", name),
	}
}

func (n *Node) Name() string { return n.name }

// Stats returns a snapshot of the counters.
func (n *Node) Stats() Stats { return n.stats }

// Addresses returns the local addresses.
func (n *Node) Addresses() []netip.Addr { return slices.Clone(n.addrs) }

// Devices returns the attached devices in attachment order.
func (n *Node) Devices() []*link.Device { return slices.Clone(n.devices) }

// AddAddress assigns a local address. Datagrams to it are delivered
// locally.
func (n *Node) AddAddress(a netip.Addr) {
	if !n.IsLocal(a) {
		n.addrs = append(n.addrs, a)
	}
}

// IsLocal reports whether a is one of the node's addresses.
func (n *Node) IsLocal(a netip.Addr) bool {
	return slices.Contains(n.addrs, a)
}

// AddDevice attaches d; datagrams received on d enter this node.
func (n *Node) AddDevice(d *link.Device) {
	n.devices = append(n.devices, d)
	d.SetReceiveCallback(n.receive)
}

// Device returns the attached device with the given name.
func (n *Node) Device(name string) (*link.Device, bool) {
	for _, d := range n.devices {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// SetLocalHandler installs the handler for locally addressed datagrams.
func (n *Node) SetLocalHandler(h LocalHandler) { n.local = h }

// AddRoute installs a static route. A later route for the same prefix
// replaces the earlier one.
func (n *Node) AddRoute(pfx netip.Prefix, via *link.Device) error {
	if !slices.Contains(n.devices, via) {
		return fmt.Errorf("node %s: route %s via %s: %w", n.name, pfx, via.Name(), core.ErrUnknownLink)
	}
	n.routes.Insert(pfx.Masked(), via)
	return nil
}

// RemoveRoute deletes the route for exactly pfx.
func (n *Node) RemoveRoute(pfx netip.Prefix) {
	n.routes.Delete(pfx.Masked())
}

// Route returns the outbound device for dst by longest-prefix match.
func (n *Node) Route(dst netip.Addr) (*link.Device, bool) {
	return n.routes.Lookup(dst)
}

// Send originates a datagram from this node.
func (n *Node) Send(pkt *core.Packet) error {
	n.stats.Originated++
	return n.output(pkt)
}

func (n *Node) output(pkt *core.Packet) error {
	dst, proto, err := n.destination(pkt)
	if err != nil {
		n.stats.Malformed++
		return err
	}
	dev, ok := n.Route(dst)
	if !ok {
		n.stats.NoRoute++
		return fmt.Errorf("node %s: %s: %w", n.name, dst, core.ErrNoRoute)
	}
	if !dev.Send(pkt, dst, proto) {
		n.stats.SendFailed++
	}
	return nil
}

func (n *Node) receive(_ *link.Device, pkt *core.Packet, proto core.EtherType) {
	dst, _, err := n.destination(pkt)
	if err != nil {
		n.stats.Malformed++
		n.logger.Debug("malformed datagram", "uid", pkt.UID, "err", err)
		return
	}
	if n.IsLocal(dst) {
		n.stats.Delivered++
		if n.local != nil {
			n.local(n, pkt, proto)
		}
		return
	}
	if !decrementTTL(pkt.Data) {
		n.stats.TTLExpired++
		return
	}
	n.stats.Forwarded++
	if err := n.output(pkt); err != nil {
		n.logger.Debug("forwarding failed", "uid", pkt.UID, "err", err)
	}
}

// destination reads the destination address of an IPv4 or IPv6 datagram.
func (n *Node) destination(pkt *core.Packet) (netip.Addr, core.EtherType, error) {
	if len(pkt.Data) == 0 {
		return netip.Addr{}, 0, core.ErrPacketTooShort
	}
	switch pkt.Data[0] >> 4 {
	case 4:
		if err := n.ip4.DecodeFromBytes(pkt.Data, gopacket.NilDecodeFeedback); err != nil {
			return netip.Addr{}, 0, fmt.Errorf("%w: %v", core.ErrPacketTooShort, err)
		}
		a, _ := netip.AddrFromSlice(n.ip4.DstIP.To4())
		return a, core.EtherTypeIPv4, nil
	case 6:
		if err := n.ip6.DecodeFromBytes(pkt.Data, gopacket.NilDecodeFeedback); err != nil {
			return netip.Addr{}, 0, fmt.Errorf("%w: %v", core.ErrPacketTooShort, err)
		}
		a, _ := netip.AddrFromSlice(n.ip6.DstIP)
		return a, core.EtherTypeIPv6, nil
	default:
		return netip.Addr{}, 0, core.ErrUnsupportedNetwork
	}
}

// decrementTTL lowers the IPv4 TTL or IPv6 hop limit in place, patching
// the IPv4 header checksum incrementally (RFC 1624). It returns false when
// the datagram must not be forwarded.
func decrementTTL(data []byte) bool {
	switch data[0] >> 4 {
	case 4:
		if data[8] <= 1 {
			return false
		}
		data[8]--
		// TTL is the high byte of the 16-bit word at offset 8.
		sum := uint32(binary.BigEndian.Uint16(data[10:12])) + 0x0100
		sum = (sum & 0xffff) + (sum >> 16)
		binary.BigEndian.PutUint16(data[10:12], uint16(sum))
		return true
	case 6:
		if data[7] <= 1 {
			return false
		}
		data[7]--
		return true
	}
	return false
}
