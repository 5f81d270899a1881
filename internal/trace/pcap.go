// Package trace records simulation activity to files: pcap captures of
// link devices and queue occupancy time series.
package trace

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/sim"
)

// Snaplen is the capture length written in pcap file headers.
const Snaplen = 65535

// Pcap writes framed packets in pcap format with PPP link type. Packet
// timestamps are virtual time since the Unix epoch.
type Pcap struct {
	w     *pcapgo.Writer
	sched *sim.Scheduler
	err   error
	count uint64
}

// NewPcap writes the file header to w.
func NewPcap(w io.Writer, sched *sim.Scheduler) (*Pcap, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(Snaplen, layers.LinkTypePPP); err != nil {
		return nil, err
	}
	return &Pcap{w: pw, sched: sched}, nil
}

// Write appends one packet record. After the first failure every call
// returns that error.
func (p *Pcap) Write(pkt *core.Packet) error {
	if p.err != nil {
		return p.err
	}
	n := len(pkt.Data)
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(p.sched.Now()),
		CaptureLength: min(n, Snaplen),
		Length:        n,
	}
	if err := p.w.WritePacket(ci, pkt.Data[:ci.CaptureLength]); err != nil {
		p.err = err
		return err
	}
	p.count++
	return nil
}

// Count returns the number of records written.
func (p *Pcap) Count() uint64 { return p.count }

// Err returns the first write error.
func (p *Pcap) Err() error { return p.err }

// Attach captures every frame d transmits or receives.
func (p *Pcap) Attach(d *link.Device) {
	record := func(_ *link.Device, pkt *core.Packet) { _ = p.Write(pkt) }
	d.OnTransmit(record)
	d.OnReceive(record)
}
