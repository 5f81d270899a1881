package queue

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/frr/internal/core"
)

func newPackets(n int) []*core.Packet {
	pkts := make([]*core.Packet, n)
	for i := range pkts {
		pkts[i] = core.NewPacket([]byte{byte(i)}, 0)
	}
	return pkts
}

func TestQueueFIFO(t *testing.T) {
	q := New(3)
	pkts := newPackets(3)
	for _, p := range pkts {
		require.True(t, q.Enqueue(p))
	}

	assert.Same(t, pkts[0], q.Peek())
	assert.Equal(t, 3, q.Len(), "Peek must not change occupancy")

	for _, want := range pkts {
		assert.Same(t, want, q.Dequeue())
	}
	assert.Nil(t, q.Dequeue())
	assert.Nil(t, q.Peek())
}

func TestQueueEnqueueFullLeavesStateUnchanged(t *testing.T) {
	q := New(2)
	pkts := newPackets(3)
	require.True(t, q.Enqueue(pkts[0]))
	require.True(t, q.Enqueue(pkts[1]))

	assert.False(t, q.Enqueue(pkts[2]))
	assert.Equal(t, 2, q.Len())
	assert.Same(t, pkts[0], q.Peek())

	var got []*core.Packet
	for p := range q.All() {
		got = append(got, p)
	}
	assert.Equal(t, pkts[:2], got)
}

func TestQueueOccupancyNeverExceedsCapacity(t *testing.T) {
	q := New(4)
	// Interleave bursts of enqueues with single dequeues and wrap the ring
	// several times.
	for round := 0; round < 20; round++ {
		for i := 0; i < 3; i++ {
			q.Enqueue(core.NewPacket(nil, 0))
			require.LessOrEqual(t, q.Len(), q.Cap())
			require.GreaterOrEqual(t, q.Len(), 0)
		}
		q.Dequeue()
	}
	assert.Equal(t, 4, q.Len())
}

func TestQueueWrapAroundKeepsOrder(t *testing.T) {
	q := New(3)
	pkts := newPackets(5)
	q.Enqueue(pkts[0])
	q.Enqueue(pkts[1])
	q.Dequeue()
	q.Enqueue(pkts[2])
	q.Enqueue(pkts[3])
	q.Dequeue()
	q.Enqueue(pkts[4])

	var got []*core.Packet
	for p := range q.All() {
		got = append(got, p)
	}
	assert.Equal(t, []*core.Packet{pkts[2], pkts[3], pkts[4]}, got)
}

func TestQueueAllStopsEarly(t *testing.T) {
	q := New(4)
	for _, p := range newPackets(4) {
		q.Enqueue(p)
	}
	n := 0
	for range q.All() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, q.Len())
}

func TestNewClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, New(0).Cap())
	assert.Equal(t, 1, New(-3).Cap())
}

type recorder struct {
	events []string
	levels []int
}

func (r *recorder) OnEnqueue(_ *core.Packet, n int) { r.events = append(r.events, "enq"); r.levels = append(r.levels, n) }
func (r *recorder) OnDequeue(_ *core.Packet, n int) { r.events = append(r.events, "deq"); r.levels = append(r.levels, n) }
func (r *recorder) OnDrop(_ *core.Packet, n int)    { r.events = append(r.events, "drop"); r.levels = append(r.levels, n) }

func TestQueueObserver(t *testing.T) {
	rec := &recorder{}
	q := New(1, WithObserver(rec))

	q.Enqueue(core.NewPacket(nil, 0))
	q.Enqueue(core.NewPacket(nil, 0))
	q.Dequeue()
	q.Dequeue()

	assert.Equal(t, []string{"enq", "drop", "deq"}, rec.events)
	assert.Equal(t, []int{1, 1, 0}, rec.levels)
}

func TestDump(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1).To4(), DstIP: net.IPv4(10, 0, 1, 1).To4(),
	}
	udp := &layers.UDP{SrcPort: 49152, DstPort: 5001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.PPP{PPPType: layers.PPPTypeIPv4}, ip, udp, gopacket.Payload("x")))

	q := New(4)
	q.Enqueue(core.NewPacket(buf.Bytes(), 0))
	q.Enqueue(core.NewPacket(buf.Bytes(), 0))

	var out bytes.Buffer
	require.NoError(t, q.Dump(&out))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "CURRENT QUEUE CONTENTS", lines[0])
	assert.Equal(t, "END OF QUEUE", lines[3])
	assert.Contains(t, lines[1], "PPP/IPv4/UDP")
	assert.Contains(t, lines[1], "10.0.0.1:49152 -> 10.0.1.1:5001")
	assert.Equal(t, 2, q.Len(), "Dump must not mutate the queue")
}

func TestDumpEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, New(2).Dump(&out))
	assert.Equal(t, "CURRENT QUEUE CONTENTS\nEND OF QUEUE\n", out.String())
}
