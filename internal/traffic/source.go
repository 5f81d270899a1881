package traffic

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/sim"
)

// Sender accepts originated datagrams. *node.Node implements it.
type Sender interface {
	Send(pkt *core.Packet) error
}

// SourceStats counts what a source emitted.
type SourceStats struct {
	Packets uint64
	Bytes   uint64 // datagram bytes
	Payload uint64
	Errors  uint64 // datagrams the sender refused, e.g. no route
}

// Source emits the datagrams of one flow at a constant rate. The gap
// between two packets is the time the flow rate needs to carry one
// datagram.
type Source struct {
	flow   Flow
	sched  *sim.Scheduler
	out    Sender
	stats  SourceStats
	seq    uint64
	tcpSeq uint32

	onUntil time.Duration
	stopped bool
	logger  *slog.Logger
}

// NewSource validates f and returns a source that sends through out once
// started.
func NewSource(f Flow, sched *sim.Scheduler, out Sender) (*Source, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		flow:   f,
		sched:  sched,
		out:    out,
		tcpSeq: 1,
		logger: slog.Default().With("flow", f.Name),
	}, nil
}

// Flow returns the flow description.
func (s *Source) Flow() Flow { return s.flow }

// Stats returns the counters.
func (s *Source) Stats() SourceStats { return s.stats }

// Start schedules the first packet at the flow's start time.
func (s *Source) Start() {
	s.sched.ScheduleAt(s.flow.Start, s.tick)
}

// Stop prevents further packets.
func (s *Source) Stop() { s.stopped = true }

func (s *Source) tick() {
	now := s.sched.Now()
	if s.stopped || (s.flow.Stop != 0 && now >= s.flow.Stop) {
		return
	}
	if s.flow.MaxBytes != 0 && s.stats.Payload >= s.flow.MaxBytes {
		s.logger.Debug("byte budget exhausted", "bytes", s.stats.Payload)
		return
	}
	if s.flow.OffTime > 0 {
		if s.onUntil == 0 {
			s.onUntil = now + s.flow.OnTime
		}
		if now >= s.onUntil {
			s.onUntil = now + s.flow.OffTime + s.flow.OnTime
			s.sched.Schedule(s.flow.OffTime, s.tick)
			return
		}
	}

	pkt, err := s.build(now)
	if err != nil {
		s.logger.Error("cannot build packet", "err", err)
		return
	}
	size := pkt.Size()
	s.stats.Packets++
	s.stats.Bytes += uint64(size)
	s.stats.Payload += uint64(s.flow.PacketSize)
	if err := s.out.Send(pkt); err != nil {
		s.stats.Errors++
		s.logger.Debug("send failed", "uid", pkt.UID, "err", err)
	}
	s.sched.Schedule(s.flow.Rate.TxTime(size), s.tick)
}

func (s *Source) build(now time.Duration) (*core.Packet, error) {
	f := s.flow
	payload := make([]byte, f.PacketSize)
	binary.BigEndian.PutUint64(payload, s.seq)
	s.seq++

	var network interface {
		gopacket.NetworkLayer
		gopacket.SerializableLayer
	}
	proto := layers.IPProtocol(f.Protocol.Number())
	if f.Src.Is4() {
		network = &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    f.Src.AsSlice(),
			DstIP:    f.Dst.AsSlice(),
		}
	} else {
		network = &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: proto,
			SrcIP:      f.Src.AsSlice(),
			DstIP:      f.Dst.AsSlice(),
		}
	}

	var transport gopacket.SerializableLayer
	switch f.Protocol {
	case TCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(f.SrcPort),
			DstPort: layers.TCPPort(f.DstPort),
			Seq:     s.tcpSeq,
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		s.tcpSeq += uint32(f.PacketSize)
		transport = tcp
	default:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(f.SrcPort),
			DstPort: layers.UDPPort(f.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		transport = udp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, network, transport, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return core.NewPacket(buf.Bytes(), now), nil
}
