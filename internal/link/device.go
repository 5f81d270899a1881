// Package link models point-to-point links: a device with a bounded
// transmit queue and a serializing transmitter, and the channel joining two
// devices. A Device is the forwarding port rerouting policies act on.
package link

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/core/frame"
	"firestige.xyz/frr/internal/queue"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/sim"
)

// DropReason labels why a device discarded a packet.
type DropReason string

const (
	DropLinkDown    DropReason = "link_down"
	DropQueueFull   DropReason = "queue_full"
	DropNoAlternate DropReason = "no_alternate"
	DropBadFrame    DropReason = "bad_frame"
)

type txState int

const (
	txReady txState = iota
	txBusy
)

// Config holds the static parameters of a device.
type Config struct {
	Rate          DataRate
	InterframeGap time.Duration
	QueueCapacity int
	Threshold     queue.Threshold
}

// Stats counts device activity. Byte counts include link framing except
// for DivertedBytes, which counts datagram bytes.
type Stats struct {
	Offered         uint64 // packets handed to Send
	TxPackets       uint64
	TxBytes         uint64
	RxPackets       uint64
	RxBytes         uint64
	Diverted        uint64 // packets moved to the alternate by the policy
	DivertedBytes   uint64
	RerouteFailures uint64
	Drops           map[DropReason]uint64
}

// TotalDrops sums drops over all reasons.
func (s Stats) TotalDrops() uint64 {
	var n uint64
	for _, v := range s.Drops {
		n += v
	}
	return n
}

// ReceiveFunc is called with every datagram the device receives, after
// link framing has been removed.
type ReceiveFunc func(dev *Device, pkt *core.Packet, proto core.EtherType)

// PacketHook observes packets on the wire side of a device. Packets are
// framed.
type PacketHook func(dev *Device, pkt *core.Packet)

// DropHook observes discarded packets.
type DropHook func(dev *Device, pkt *core.Packet, reason DropReason)

// RerouteHook observes diversion attempts made by the device's policy.
type RerouteHook func(dev *Device, ev reroute.Event)

// Device is one end of a point-to-point link. It implements reroute.Port.
//
// A device is driven by a sim.Scheduler and must only be used from the
// scheduler's goroutine.
type Device struct {
	name    string
	sched   *sim.Scheduler
	cfg     Config
	queue   *queue.Queue
	policy  reroute.Policy
	channel *Channel

	state   txState
	current *core.Packet

	receive      ReceiveFunc
	txHooks      []PacketHook
	rxHooks      []PacketHook
	dropHooks    []DropHook
	rerouteHooks []RerouteHook

	stats  Stats
	logger *slog.Logger
}

var _ reroute.Port = (*Device)(nil)

// NewDevice creates a detached device. It stays down until attached to a
// Channel.
func NewDevice(name string, sched *sim.Scheduler, cfg Config) *Device {
	return &Device{
		name:   name,
		sched:  sched,
		cfg:    cfg,
		queue:  queue.New(cfg.QueueCapacity, queue.WithThreshold(cfg.Threshold)),
		stats:  Stats{Drops: make(map[DropReason]uint64)},
		logger: slog.Default().With("device", name),
	}
}

func (d *Device) Name() string { return d.name }

// Queue returns the transmit queue.
func (d *Device) Queue() *queue.Queue { return d.queue }

// Config returns the device parameters.
func (d *Device) Config() Config { return d.cfg }

// Policy returns the attached rerouting policy, or nil.
func (d *Device) Policy() reroute.Policy { return d.policy }

// Channel returns the attached channel, or nil.
func (d *Device) Channel() *Channel { return d.channel }

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	s := d.stats
	s.Drops = make(map[DropReason]uint64, len(d.stats.Drops))
	for k, v := range d.stats.Drops {
		s.Drops[k] = v
	}
	return s
}

// Busy reports whether a frame is being serialized.
func (d *Device) Busy() bool { return d.state == txBusy }

// Transmitting returns the frame being serialized, or nil.
func (d *Device) Transmitting() *core.Packet { return d.current }

// IsLinkUp reports whether the device is attached to a channel.
func (d *Device) IsLinkUp() bool { return d.channel != nil }

// IsCongested reports whether the transmit queue is at or above its
// threshold.
func (d *Device) IsCongested() bool { return d.queue.Congested() }

// SetPolicy attaches a rerouting policy. A nil policy sends everything on
// the primary path.
func (d *Device) SetPolicy(p reroute.Policy) { d.policy = p }

// AddAlternateTarget registers t with the attached policy. Without a policy
// it does nothing.
func (d *Device) AddAlternateTarget(t reroute.Target) {
	if d.policy == nil {
		d.logger.Warn("alternate ignored, no rerouting policy", "alternate", t.Name())
		return
	}
	d.policy.AddAlternateTarget(t)
}

// SetReceiveCallback installs the upper-layer receive function.
func (d *Device) SetReceiveCallback(fn ReceiveFunc) { d.receive = fn }

// OnTransmit registers a hook run when a packet starts transmission.
func (d *Device) OnTransmit(h PacketHook) { d.txHooks = append(d.txHooks, h) }

// OnReceive registers a hook run for every frame arriving from the channel.
func (d *Device) OnReceive(h PacketHook) { d.rxHooks = append(d.rxHooks, h) }

// OnDrop registers a hook run for every discarded packet.
func (d *Device) OnDrop(h DropHook) { d.dropHooks = append(d.dropHooks, h) }

// OnReroute registers a hook run for every diversion attempt.
func (d *Device) OnReroute(h RerouteHook) { d.rerouteHooks = append(d.rerouteHooks, h) }

// Send is the entry point for outbound datagrams. Packets offered while
// the link is down are dropped; otherwise the policy decides the path.
func (d *Device) Send(pkt *core.Packet, dest core.Address, proto core.EtherType) bool {
	if !d.IsLinkUp() {
		d.drop(pkt, DropLinkDown)
		return false
	}
	d.stats.Offered++
	if d.policy == nil {
		return d.SendPacket(pkt, dest, proto)
	}
	return d.policy.HandleOutboundPacket(pkt, dest, proto, d)
}

// SendPacket frames pkt and queues it for transmission on this device,
// bypassing the policy. It returns false only when the packet was dropped.
func (d *Device) SendPacket(pkt *core.Packet, _ core.Address, proto core.EtherType) bool {
	if err := frame.Add(pkt, proto); err != nil {
		d.logger.Debug("cannot frame packet", "uid", pkt.UID, "err", err)
		d.drop(pkt, DropBadFrame)
		return false
	}
	if !d.queue.Enqueue(pkt) {
		d.drop(pkt, DropQueueFull)
		return false
	}
	if d.state == txReady {
		d.transmitStart(d.queue.Dequeue())
	}
	return true
}

// RecordReroute accounts for a diversion attempt of the attached policy.
// It is meant to be installed as reroute.Options.Hook.
func (d *Device) RecordReroute(ev reroute.Event) {
	switch {
	case ev.Err == nil:
		d.stats.Diverted++
		d.stats.DivertedBytes += uint64(ev.Bytes)
	case errors.Is(ev.Err, core.ErrNoAlternate):
		d.stats.RerouteFailures++
		d.drop(ev.Packet, DropNoAlternate)
	default:
		// The alternate accounted for the drop itself.
		d.stats.RerouteFailures++
	}
	for _, h := range d.rerouteHooks {
		h(d, ev)
	}
}

// DumpQueue writes the transmit queue contents to w.
func (d *Device) DumpQueue(w io.Writer) error {
	return d.queue.Dump(w)
}

func (d *Device) transmitStart(pkt *core.Packet) {
	d.state = txBusy
	d.current = pkt
	d.stats.TxPackets++
	d.stats.TxBytes += uint64(pkt.Size())
	for _, h := range d.txHooks {
		h(d, pkt)
	}

	txTime := d.cfg.Rate.TxTime(pkt.Size())
	d.sched.Schedule(txTime+d.cfg.InterframeGap, d.transmitComplete)
	if d.channel != nil {
		d.channel.transmit(pkt, d, txTime)
	}
}

func (d *Device) transmitComplete() {
	d.state = txReady
	d.current = nil
	if next := d.queue.Dequeue(); next != nil {
		d.transmitStart(next)
	}
}

// deliver is called by the channel when a frame has fully arrived.
func (d *Device) deliver(pkt *core.Packet) {
	d.stats.RxPackets++
	d.stats.RxBytes += uint64(pkt.Size())
	for _, h := range d.rxHooks {
		h(d, pkt)
	}
	proto, err := frame.Strip(pkt)
	if err != nil {
		d.logger.Debug("bad frame", "uid", pkt.UID, "err", err)
		d.drop(pkt, DropBadFrame)
		return
	}
	if d.receive != nil {
		d.receive(d, pkt, proto)
	}
}

func (d *Device) drop(pkt *core.Packet, reason DropReason) {
	d.stats.Drops[reason]++
	for _, h := range d.dropHooks {
		h(d, pkt, reason)
	}
}
