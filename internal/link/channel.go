package link

import (
	"fmt"
	"time"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/sim"
)

// Channel is a full-duplex wire between exactly two devices. A frame sent
// at time t with serialization time tx arrives at the peer at
// t + tx + Delay.
type Channel struct {
	sched *sim.Scheduler
	delay time.Duration
	ends  [2]*Device
}

// NewChannel creates an empty channel with the given propagation delay.
func NewChannel(sched *sim.Scheduler, delay time.Duration) *Channel {
	return &Channel{sched: sched, delay: delay}
}

// Delay returns the propagation delay.
func (c *Channel) Delay() time.Duration { return c.delay }

// Attach connects d to the channel, which brings d's link up.
func (c *Channel) Attach(d *Device) error {
	for i := range c.ends {
		if c.ends[i] == nil {
			c.ends[i] = d
			d.channel = c
			return nil
		}
	}
	return fmt.Errorf("channel: attach %s: both ends in use", d.Name())
}

// Peer returns the device at the other end from d, or nil.
func (c *Channel) Peer(d *Device) *Device {
	switch d {
	case c.ends[0]:
		return c.ends[1]
	case c.ends[1]:
		return c.ends[0]
	}
	return nil
}

func (c *Channel) transmit(pkt *core.Packet, src *Device, txTime time.Duration) {
	dst := c.Peer(src)
	if dst == nil {
		return
	}
	cp := pkt.Copy()
	c.sched.Schedule(txTime+c.delay, func() { dst.deliver(cp) })
}

// Connect creates two devices named a and b joined by a channel.
func Connect(sched *sim.Scheduler, a, b string, cfg Config, delay time.Duration) (*Device, *Device, *Channel) {
	ch := NewChannel(sched, delay)
	da := NewDevice(a, sched, cfg)
	db := NewDevice(b, sched, cfg)
	// Attach cannot fail on a fresh channel.
	_ = ch.Attach(da)
	_ = ch.Attach(db)
	return da, db, ch
}
