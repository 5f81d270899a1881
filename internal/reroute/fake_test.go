package reroute

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/core/frame"
	"firestige.xyz/frr/internal/queue"
)

// fakePort is a device whose transmitter is permanently busy: packets are
// framed and queued but never leave.
type fakePort struct {
	name      string
	q         *queue.Queue
	sent      []*core.Packet
	congested *bool
}

func newFakePort(name string, capacity int) *fakePort {
	return &fakePort{name: name, q: queue.New(capacity)}
}

func (f *fakePort) Name() string        { return f.name }
func (f *fakePort) Queue() *queue.Queue { return f.q }

func (f *fakePort) IsCongested() bool {
	if f.congested != nil {
		return *f.congested
	}
	return queue.IsCongested(f.q)
}

func (f *fakePort) SendPacket(pkt *core.Packet, _ core.Address, proto core.EtherType) bool {
	if err := frame.Add(pkt, proto); err != nil {
		return false
	}
	if !f.q.Enqueue(pkt) {
		return false
	}
	f.sent = append(f.sent, pkt)
	return true
}

func (f *fakePort) setCongested(v bool) { f.congested = &v }

var dest = netip.MustParseAddr("10.0.1.1")

func udpPacket(t *testing.T, src string, sport, dport uint16) *core.Packet {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    dest.AsSlice(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, udp, gopacket.Payload(make([]byte, 32)))
	require.NoError(t, err)
	return core.NewPacket(append([]byte(nil), buf.Bytes()...), 0)
}

func icmpPacket(t *testing.T) *core.Packet {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(10, 0, 0, 9).To4(),
		DstIP:    dest.AsSlice(),
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, icmp)
	require.NoError(t, err)
	return core.NewPacket(append([]byte(nil), buf.Bytes()...), 0)
}
