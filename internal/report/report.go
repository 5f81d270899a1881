// Package report summarizes a finished simulation run.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/topology"
)

// Report is the YAML document written after a run.
type Report struct {
	RunID     string         `yaml:"run_id"`
	SimTime   time.Duration  `yaml:"sim_time"`
	WallTime  time.Duration  `yaml:"wall_time"`
	Events    uint64         `yaml:"events"`
	Rerouting bool           `yaml:"rerouting"`
	Flows     []FlowReport   `yaml:"flows"`
	Devices   []DeviceReport `yaml:"devices"`
	Totals    Totals         `yaml:"totals"`
}

// FlowReport compares what a source sent with what its sink received.
// Lost includes packets still in flight when the run ended.
type FlowReport struct {
	Name        string        `yaml:"name"`
	Protocol    string        `yaml:"protocol"`
	Src         string        `yaml:"src"`
	Dst         string        `yaml:"dst"`
	Sent        uint64        `yaml:"sent"`
	Received    uint64        `yaml:"received"`
	Lost        uint64        `yaml:"lost"`
	LossPercent float64       `yaml:"loss_percent"`
	Reordered   uint64        `yaml:"reordered"`
	MeanDelay   time.Duration `yaml:"mean_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Throughput  string        `yaml:"throughput,omitempty"`
}

// DeviceReport holds the counters of one device. Idle devices are
// omitted from a report.
type DeviceReport struct {
	Name            string            `yaml:"name"`
	Policy          string            `yaml:"policy,omitempty"`
	TxPackets       uint64            `yaml:"tx_packets"`
	TxBytes         uint64            `yaml:"tx_bytes"`
	RxPackets       uint64            `yaml:"rx_packets"`
	Diverted        uint64            `yaml:"diverted,omitempty"`
	DivertedBytes   uint64            `yaml:"diverted_bytes,omitempty"`
	RerouteFailures uint64            `yaml:"reroute_failures,omitempty"`
	Drops           map[string]uint64 `yaml:"drops,omitempty"`
	DivertedFlows   []string          `yaml:"diverted_flows,omitempty"`
}

// Totals aggregates every flow and device.
type Totals struct {
	Sent     uint64 `yaml:"sent"`
	Received uint64 `yaml:"received"`
	Drops    uint64 `yaml:"drops"`
	Diverted uint64 `yaml:"diverted"`
}

// New builds the report of a network that has run.
func New(n *topology.Network) *Report {
	cfg := n.Config()
	r := &Report{
		RunID:     uuid.NewString(),
		SimTime:   n.Scheduler().Now(),
		WallTime:  n.WallTime().Round(time.Millisecond),
		Events:    n.Scheduler().Executed(),
		Rerouting: cfg.Simulation.EnableRerouting,
	}

	sink := n.Sink()
	for _, src := range n.Sources() {
		f := src.Flow()
		sent := src.Stats().Packets
		fr := FlowReport{
			Name:     f.Name,
			Protocol: string(f.Protocol),
			Src:      fmt.Sprintf("%s:%d", f.Src, f.SrcPort),
			Dst:      fmt.Sprintf("%s:%d", f.Dst, f.DstPort),
			Sent:     sent,
		}
		if fs, ok := sink.Flow(f.Key()); ok {
			fr.Received = fs.Packets
			fr.Reordered = fs.Reordered
			fr.MeanDelay = fs.MeanDelay()
			fr.MaxDelay = fs.MaxDelay
			if span := fs.LastArrival - fs.FirstArrival; span > 0 {
				bps := float64(fs.Bytes*8) / span.Seconds()
				fr.Throughput = link.DataRate(bps).String()
			}
		}
		if sent > fr.Received {
			fr.Lost = sent - fr.Received
			fr.LossPercent = float64(fr.Lost) * 100 / float64(sent)
		}
		r.Totals.Sent += fr.Sent
		r.Totals.Received += fr.Received
		r.Flows = append(r.Flows, fr)
	}

	for _, d := range n.Devices() {
		st := d.Stats()
		if st.Offered == 0 && st.TxPackets == 0 && st.RxPackets == 0 && st.TotalDrops() == 0 {
			continue
		}
		dr := DeviceReport{
			Name:            d.Name(),
			TxPackets:       st.TxPackets,
			TxBytes:         st.TxBytes,
			RxPackets:       st.RxPackets,
			Diverted:        st.Diverted,
			DivertedBytes:   st.DivertedBytes,
			RerouteFailures: st.RerouteFailures,
		}
		if p := d.Policy(); p != nil {
			dr.Policy = p.Name()
		}
		if pf, ok := d.Policy().(*reroute.PerFlowReroute); ok {
			for _, k := range pf.Diverted() {
				dr.DivertedFlows = append(dr.DivertedFlows, k.String())
			}
		}
		for reason, count := range st.Drops {
			if count == 0 {
				continue
			}
			if dr.Drops == nil {
				dr.Drops = make(map[string]uint64)
			}
			dr.Drops[string(reason)] = count
		}
		r.Totals.Drops += st.TotalDrops()
		r.Totals.Diverted += st.Diverted
		r.Devices = append(r.Devices, dr)
	}
	return r
}

// Write encodes r as YAML.
func (r *Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes r to path, or to stdout when path is empty or "-".
func (r *Report) WriteFile(path string) error {
	if path == "" || path == "-" {
		return r.Write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
