package metrics

import (
	"context"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/sim"
)

var (
	dst     = netip.MustParseAddr("10.0.1.1")
	linkCfg = link.Config{Rate: 8 * link.MegabitPerSec, QueueCapacity: 4}
)

func datagram() *core.Packet {
	data := make([]byte, 998)
	data[0] = 0x45
	return core.NewPacket(data, 0)
}

func TestObserveRerouting(t *testing.T) {
	sched := sim.NewScheduler()
	p0, p1, _ := link.Connect(sched, "m-p0", "m-p1", linkCfg, time.Millisecond)
	a0, _, _ := link.Connect(sched, "m-a0", "m-a1", linkCfg, time.Millisecond)
	pol, err := reroute.New(reroute.NameLFA, reroute.Options{Hook: p0.RecordReroute})
	require.NoError(t, err)
	p0.SetPolicy(pol)
	p0.AddAlternateTarget(a0)
	Observe(p0)
	Observe(p1)

	for i := 0; i < 5; i++ {
		require.True(t, p0.Send(datagram(), dst, core.EtherTypeIPv4))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(QueueOccupancy.WithLabelValues("m-p0")))
	require.NoError(t, sched.Run(context.Background(), sim.Forever))

	assert.Equal(t, 3.0, testutil.ToFloat64(DevicePacketsTotal.WithLabelValues("m-p0", "tx")))
	assert.Equal(t, 3000.0, testutil.ToFloat64(DeviceBytesTotal.WithLabelValues("m-p0", "tx")))
	assert.Equal(t, 3.0, testutil.ToFloat64(DevicePacketsTotal.WithLabelValues("m-p1", "rx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ReroutedPacketsTotal.WithLabelValues("m-p0", reroute.NameLFA)))
	assert.Equal(t, 1996.0, testutil.ToFloat64(ReroutedBytesTotal.WithLabelValues("m-p0", reroute.NameLFA)))
	assert.Equal(t, 0.0, testutil.ToFloat64(QueueOccupancy.WithLabelValues("m-p0")))
}

func TestObserveDrops(t *testing.T) {
	sched := sim.NewScheduler()
	p0, _, _ := link.Connect(sched, "d-p0", "d-p1", linkCfg, 0)
	pol, err := reroute.New(reroute.NameLFA, reroute.Options{Hook: p0.RecordReroute})
	require.NoError(t, err)
	p0.SetPolicy(pol)
	Observe(p0)

	for i := 0; i < 5; i++ {
		p0.Send(datagram(), dst, core.EtherTypeIPv4)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(DeviceDropsTotal.WithLabelValues("d-p0", string(link.DropNoAlternate))))
	assert.Equal(t, 2.0, testutil.ToFloat64(RerouteFailuresTotal.WithLabelValues("d-p0", reroute.NameLFA)))
}

func TestServerServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	DeviceDropsTotal.WithLabelValues("srv", string(link.DropQueueFull)).Inc()

	srv := NewServer("127.0.0.1:0", "")
	require.NoError(t, srv.Start(context.Background()))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `frr_device_drops_total{device="srv",reason="queue_full"} 1`))

	require.NoError(t, srv.Stop(context.Background()))
}

func TestServerStartBindError(t *testing.T) {
	srv := NewServer("256.0.0.1:1", "/m")
	assert.Error(t, srv.Start(context.Background()))
	assert.NoError(t, srv.Stop(context.Background()))
}
