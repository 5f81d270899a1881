package report

import (
	"bytes"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/frr/internal/config"
	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/topology"
)

// bottleneck runs h1 -> r1 -> h2 where r1's uplink is slower than the
// flow and r1 can divert over a second parallel link.
func bottleneck(t *testing.T, policy string) *topology.Network {
	t.Helper()
	cfg := &config.Config{
		Log: config.LogConfig{Level: "info", Format: "text"},
		Simulation: config.SimulationConfig{
			Duration:         100 * time.Millisecond,
			EnableRerouting:  true,
			Policy:           policy,
			QueueCapacity:    4,
			ThresholdPercent: 50,
		},
		Nodes: []config.NodeConfig{
			{Name: "h1", Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.1")}},
			{Name: "r1"},
			{Name: "h2", Addresses: []netip.Addr{netip.MustParseAddr("10.0.1.1")}},
		},
		Links: []config.LinkConfig{
			{Name: "up", A: "h1", B: "r1", Rate: 100 * link.MegabitPerSec},
			{Name: "main", A: "r1", B: "h2", Rate: link.MegabitPerSec, Delay: time.Millisecond,
				Reroute: []config.RerouteConfig{{From: "r1", Alternates: []string{"spare"}}}},
			{Name: "spare", A: "r1", B: "h2", Rate: 10 * link.MegabitPerSec, Delay: time.Millisecond},
		},
		Routes: []config.RouteConfig{
			{Node: "h1", Prefix: netip.MustParsePrefix("0.0.0.0/0"), Via: "up"},
			{Node: "r1", Prefix: netip.MustParsePrefix("10.0.1.0/24"), Via: "main"},
		},
		Flows: []config.FlowConfig{
			{Name: "cbr", From: "h1", To: "h2", DstPort: 5001, Rate: 2 * link.MegabitPerSec, PacketSize: 500},
		},
	}
	require.NoError(t, cfg.ValidateAndApplyDefaults())
	n, err := topology.Build(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Run(context.Background()))
	return n
}

func TestNew(t *testing.T) {
	n := bottleneck(t, reroute.NameRerouteFlow)
	r := New(n)

	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, r.SimTime)
	assert.NotZero(t, r.Events)
	assert.True(t, r.Rerouting)

	require.Len(t, r.Flows, 1)
	f := r.Flows[0]
	assert.Equal(t, "cbr", f.Name)
	assert.Equal(t, "udp", f.Protocol)
	assert.Equal(t, "10.0.0.1:49152", f.Src)
	assert.Equal(t, "10.0.1.1:5001", f.Dst)
	assert.Equal(t, n.Sources()[0].Stats().Packets, f.Sent)
	assert.Equal(t, f.Sent, f.Received+f.Lost)
	assert.NotZero(t, f.Received)
	assert.NotZero(t, f.MeanDelay)
	assert.GreaterOrEqual(t, f.MaxDelay, f.MeanDelay)

	var main *DeviceReport
	for i := range r.Devices {
		if r.Devices[i].Name == "main/r1" {
			main = &r.Devices[i]
		}
	}
	require.NotNil(t, main)
	assert.Equal(t, reroute.NameRerouteFlow, main.Policy)
	assert.NotZero(t, main.Diverted)
	assert.Len(t, main.DivertedFlows, 1)
	assert.Equal(t, main.Diverted, r.Totals.Diverted)
	assert.Equal(t, f.Sent, r.Totals.Sent)
}

func TestWriteYAML(t *testing.T) {
	r := New(bottleneck(t, reroute.NameLFA))

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, r.RunID, doc["run_id"])
	assert.Equal(t, "100ms", doc["sim_time"])
	flows, ok := doc["flows"].([]any)
	require.True(t, ok)
	assert.Len(t, flows, 1)
	assert.Contains(t, doc, "totals")
}

func TestWriteFile(t *testing.T) {
	r := New(bottleneck(t, reroute.NameSafeTail))
	path := filepath.Join(t.TempDir(), "report.yml")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: "+r.RunID)

	assert.Error(t, r.WriteFile(filepath.Join(t.TempDir(), "missing", "report.yml")))
}
