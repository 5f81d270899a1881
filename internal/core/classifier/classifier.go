// Package classifier extracts flow identifiers from IP datagrams.
package classifier

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
)

// Classifier decodes the network and transport headers of a datagram into
// a core.FlowKey. Decoding reads pkt.Data in place and never writes to it,
// so the packet reaches the next consumer byte-for-byte unchanged.
//
// A Classifier reuses its layer buffers and is not safe for concurrent use.
type Classifier struct {
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload

	v4      *gopacket.DecodingLayerParser
	v6      *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	last    gopacket.Layer
}

// New creates a classifier.
func New() *Classifier {
	c := &Classifier{
		decoded: make([]gopacket.LayerType, 0, 4),
	}
	c.v4 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &c.ip4, &c.tcp, &c.udp, &c.payload)
	c.v6 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6, &c.ip6, &c.tcp, &c.udp, &c.payload)
	// ICMP and friends stop the parser; Classify reports them itself.
	c.v4.IgnoreUnsupported = true
	c.v6.IgnoreUnsupported = true
	return c
}

// Classify returns the 5-tuple flow key of pkt.
//
// Protocols other than TCP and UDP yield core.ErrUnsupportedTransport; they
// are never mapped to a default key.
func (c *Classifier) Classify(pkt *core.Packet) (core.FlowKey, error) {
	c.last = nil
	data := pkt.Data
	if len(data) == 0 {
		return core.FlowKey{}, core.ErrPacketTooShort
	}

	var parser *gopacket.DecodingLayerParser
	switch version := data[0] >> 4; version {
	case 4:
		parser = c.v4
	case 6:
		parser = c.v6
	default:
		return core.FlowKey{}, fmt.Errorf("classify: ip version %d: %w", version, core.ErrUnsupportedNetwork)
	}

	if err := parser.DecodeLayers(data, &c.decoded); err != nil {
		return core.FlowKey{}, fmt.Errorf("classify: %v: %w", err, core.ErrPacketTooShort)
	}

	var key core.FlowKey
	hasTransport := false
	for _, layerType := range c.decoded {
		switch layerType {
		case layers.LayerTypeIPv4:
			key.SrcIP = addrFrom(c.ip4.SrcIP)
			key.DstIP = addrFrom(c.ip4.DstIP)
			key.Proto = uint8(c.ip4.Protocol)
		case layers.LayerTypeIPv6:
			key.SrcIP = addrFrom(c.ip6.SrcIP)
			key.DstIP = addrFrom(c.ip6.DstIP)
			key.Proto = uint8(c.ip6.NextHeader)
		case layers.LayerTypeTCP:
			key.SrcPort = uint16(c.tcp.SrcPort)
			key.DstPort = uint16(c.tcp.DstPort)
			hasTransport = true
		case layers.LayerTypeUDP:
			key.SrcPort = uint16(c.udp.SrcPort)
			key.DstPort = uint16(c.udp.DstPort)
			hasTransport = true
		}
	}

	if key.Proto != core.ProtoTCP && key.Proto != core.ProtoUDP {
		return core.FlowKey{}, fmt.Errorf("classify: protocol %d: %w", key.Proto, core.ErrUnsupportedTransport)
	}
	if !hasTransport {
		// Non-first fragments carry no transport header.
		return core.FlowKey{}, fmt.Errorf("classify: missing transport header: %w", core.ErrPacketTooShort)
	}
	if key.Proto == core.ProtoTCP {
		c.last = &c.tcp
	} else {
		c.last = &c.udp
	}
	return key, nil
}

// Transport returns the TCP or UDP layer decoded by the last successful
// Classify call, or nil. The layer is overwritten by the next call.
func (c *Classifier) Transport() gopacket.Layer {
	return c.last
}

// Classify is a convenience wrapper using a throwaway Classifier.
func Classify(pkt *core.Packet) (core.FlowKey, error) {
	return New().Classify(pkt)
}

func addrFrom(ip []byte) netip.Addr {
	addr, _ := netip.AddrFromSlice(ip)
	return addr
}
