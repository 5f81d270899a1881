package link

import (
	"bytes"
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/sim"
)

var dst = netip.MustParseAddr("10.0.1.1")

// 8 Mbps and 998-byte datagrams give 1000-byte frames and 1 ms of
// serialization.
var testConfig = Config{
	Rate:          8 * MegabitPerSec,
	QueueCapacity: 4,
}

func datagram(n int) *core.Packet {
	data := make([]byte, n)
	data[0] = 0x45
	return core.NewPacket(data, 0)
}

type arrival struct {
	at   time.Duration
	data []byte
	uid  uint64
}

func collect(sched *sim.Scheduler, d *Device) *[]arrival {
	var got []arrival
	d.SetReceiveCallback(func(_ *Device, pkt *core.Packet, proto core.EtherType) {
		if proto == core.EtherTypeIPv4 {
			got = append(got, arrival{sched.Now(), bytes.Clone(pkt.Data), pkt.UID})
		}
	})
	return &got
}

func TestDeviceDeliversAfterTxAndDelay(t *testing.T) {
	sched := sim.NewScheduler()
	a, b, _ := Connect(sched, "a", "b", testConfig, 2*time.Millisecond)
	got := collect(sched, b)

	pkt := datagram(998)
	want := bytes.Clone(pkt.Data)
	require.True(t, a.Send(pkt, dst, core.EtherTypeIPv4))
	require.NoError(t, sched.Run(context.Background(), sim.Forever))

	require.Len(t, *got, 1)
	assert.Equal(t, 3*time.Millisecond, (*got)[0].at)
	assert.Equal(t, want, (*got)[0].data)
	assert.Equal(t, pkt.UID, (*got)[0].uid)

	assert.Equal(t, uint64(1), a.Stats().TxPackets)
	assert.Equal(t, uint64(1000), a.Stats().TxBytes)
	assert.Equal(t, uint64(1), b.Stats().RxPackets)
}

func TestDeviceSerializesBackToBack(t *testing.T) {
	sched := sim.NewScheduler()
	cfg := testConfig
	cfg.InterframeGap = 500 * time.Microsecond
	a, b, _ := Connect(sched, "a", "b", cfg, 0)
	got := collect(sched, b)

	for i := 0; i < 3; i++ {
		require.True(t, a.Send(datagram(998), dst, core.EtherTypeIPv4))
	}
	assert.True(t, a.Busy())
	assert.Equal(t, 2, a.Queue().Len(), "first packet goes straight to the wire")

	require.NoError(t, sched.Run(context.Background(), sim.Forever))
	require.Len(t, *got, 3)
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond,
		2500 * time.Microsecond,
		4 * time.Millisecond,
	}, []time.Duration{(*got)[0].at, (*got)[1].at, (*got)[2].at})
	assert.False(t, a.Busy())
	assert.Nil(t, a.Transmitting())
}

func TestDeviceTailDropWhenFull(t *testing.T) {
	sched := sim.NewScheduler()
	a, _, _ := Connect(sched, "a", "b", testConfig, 0)
	var drops []DropReason
	a.OnDrop(func(_ *Device, _ *core.Packet, r DropReason) { drops = append(drops, r) })

	var results []bool
	for i := 0; i < 6; i++ {
		results = append(results, a.Send(datagram(100), dst, core.EtherTypeIPv4))
	}
	// One on the wire, four queued, one dropped.
	assert.Equal(t, []bool{true, true, true, true, true, false}, results)
	assert.Equal(t, []DropReason{DropQueueFull}, drops)
	assert.Equal(t, uint64(1), a.Stats().Drops[DropQueueFull])
	assert.Equal(t, uint64(6), a.Stats().Offered)
}

func TestDeviceLinkDown(t *testing.T) {
	sched := sim.NewScheduler()
	d := NewDevice("lonely", sched, testConfig)
	require.False(t, d.IsLinkUp())

	assert.False(t, d.Send(datagram(100), dst, core.EtherTypeIPv4))
	assert.Equal(t, uint64(1), d.Stats().Drops[DropLinkDown])
	assert.Equal(t, uint64(1), d.Stats().TotalDrops())
	assert.Zero(t, d.Stats().Offered)
}

func TestDeviceBadProtocol(t *testing.T) {
	sched := sim.NewScheduler()
	a, _, _ := Connect(sched, "a", "b", testConfig, 0)
	assert.False(t, a.Send(datagram(100), dst, core.EtherType(0x0806)))
	assert.Equal(t, uint64(1), a.Stats().Drops[DropBadFrame])
}

func TestChannelAttachLimit(t *testing.T) {
	sched := sim.NewScheduler()
	_, _, ch := Connect(sched, "a", "b", testConfig, 0)
	err := ch.Attach(NewDevice("c", sched, testConfig))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "both ends in use")
}

func TestChannelPeer(t *testing.T) {
	sched := sim.NewScheduler()
	a, b, ch := Connect(sched, "a", "b", testConfig, time.Millisecond)
	assert.Same(t, b, ch.Peer(a))
	assert.Same(t, a, ch.Peer(b))
	assert.Nil(t, ch.Peer(NewDevice("x", sched, testConfig)))
	assert.Equal(t, time.Millisecond, ch.Delay())
}

// twoPaths builds a primary link p0-p1 and an alternate link a0-a1, with
// the named policy on p0.
func twoPaths(t *testing.T, policy string) (*sim.Scheduler, *Device, *Device) {
	t.Helper()
	sched := sim.NewScheduler()
	p0, _, _ := Connect(sched, "p0", "p1", testConfig, time.Millisecond)
	a0, _, _ := Connect(sched, "a0", "a1", testConfig, time.Millisecond)
	pol, err := reroute.New(policy, reroute.Options{Hook: p0.RecordReroute})
	require.NoError(t, err)
	p0.SetPolicy(pol)
	p0.AddAlternateTarget(a0)
	return sched, p0, a0
}

func TestDeviceReroutesWhenCongested(t *testing.T) {
	sched, p0, a0 := twoPaths(t, reroute.NameLFA)
	var events []reroute.Event
	p0.OnReroute(func(_ *Device, ev reroute.Event) { events = append(events, ev) })

	for i := 0; i < 5; i++ {
		require.True(t, p0.Send(datagram(998), dst, core.EtherTypeIPv4))
	}
	// p0: one on the wire, two queued, then congested; the rest go to a0.
	assert.Equal(t, 2, p0.Queue().Len())
	assert.Equal(t, uint64(3), p0.Stats().TxPackets+uint64(p0.Queue().Len()))
	assert.Equal(t, uint64(2), p0.Stats().Diverted)
	assert.Equal(t, uint64(2*998), p0.Stats().DivertedBytes)
	assert.Len(t, events, 2)
	assert.Equal(t, uint64(1), a0.Stats().TxPackets)

	require.NoError(t, sched.Run(context.Background(), sim.Forever))
	assert.Equal(t, uint64(3), p0.Stats().TxPackets)
	assert.Equal(t, uint64(2), a0.Stats().TxPackets)
}

func TestDeviceWithoutAlternateDrops(t *testing.T) {
	sched := sim.NewScheduler()
	p0, _, _ := Connect(sched, "p0", "p1", testConfig, 0)
	pol, err := reroute.New(reroute.NameLFA, reroute.Options{Hook: p0.RecordReroute})
	require.NoError(t, err)
	p0.SetPolicy(pol)

	var results []bool
	for i := 0; i < 5; i++ {
		results = append(results, p0.Send(datagram(100), dst, core.EtherTypeIPv4))
	}
	assert.Equal(t, []bool{true, true, true, false, false}, results)
	assert.Equal(t, uint64(2), p0.Stats().Drops[DropNoAlternate])
	assert.Equal(t, uint64(2), p0.Stats().RerouteFailures)
}

func TestDeviceAddAlternateWithoutPolicy(t *testing.T) {
	sched := sim.NewScheduler()
	a, b, _ := Connect(sched, "a", "b", testConfig, 0)
	a.AddAlternateTarget(b)
	assert.Nil(t, a.Policy())
}

func TestDeviceDumpQueue(t *testing.T) {
	sched := sim.NewScheduler()
	a, _, _ := Connect(sched, "a", "b", testConfig, 0)
	for i := 0; i < 3; i++ {
		a.Send(datagram(100), dst, core.EtherTypeIPv4)
	}
	var out strings.Builder
	require.NoError(t, a.DumpQueue(&out))
	assert.Equal(t, 4, strings.Count(out.String(), "\n"))
}

func TestDeviceHooks(t *testing.T) {
	sched := sim.NewScheduler()
	a, b, _ := Connect(sched, "a", "b", testConfig, 0)
	var tx, rx int
	a.OnTransmit(func(_ *Device, pkt *core.Packet) {
		tx++
		assert.Equal(t, []byte{0x00, 0x21}, pkt.Data[:2])
	})
	b.OnReceive(func(_ *Device, pkt *core.Packet) {
		rx++
		assert.Equal(t, []byte{0x00, 0x21}, pkt.Data[:2])
	})
	a.Send(datagram(100), dst, core.EtherTypeIPv4)
	a.Send(datagram(100), dst, core.EtherTypeIPv4)
	require.NoError(t, sched.Run(context.Background(), sim.Forever))
	assert.Equal(t, 2, tx)
	assert.Equal(t, 2, rx)
}
