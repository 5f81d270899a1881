// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/reroute"
)

var (
	// DevicePacketsTotal counts frames put on or taken off the wire.
	DevicePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_device_packets_total",
			Help: "Total number of frames transmitted or received by a device",
		},
		[]string{"device", "direction"},
	)

	// DeviceBytesTotal counts frame bytes put on or taken off the wire.
	DeviceBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_device_bytes_total",
			Help: "Total number of frame bytes transmitted or received by a device",
		},
		[]string{"device", "direction"},
	)

	// DeviceDropsTotal counts packets a device discarded, by reason.
	DeviceDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_device_drops_total",
			Help: "Total number of packets dropped by a device",
		},
		[]string{"device", "reason"},
	)

	// ReroutedPacketsTotal counts packets a policy moved to an alternate.
	ReroutedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_rerouted_packets_total",
			Help: "Total number of packets diverted to an alternate target",
		},
		[]string{"device", "policy"},
	)

	// ReroutedBytesTotal counts bytes a policy moved to an alternate.
	ReroutedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_rerouted_bytes_total",
			Help: "Total number of bytes diverted to an alternate target",
		},
		[]string{"device", "policy"},
	)

	// RerouteFailuresTotal counts diversion attempts that did not land.
	RerouteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frr_reroute_failures_total",
			Help: "Total number of failed diversion attempts",
		},
		[]string{"device", "policy"},
	)

	// QueueOccupancy tracks transmit queue depth in packets.
	QueueOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frr_queue_occupancy",
			Help: "Current number of packets in a device transmit queue",
		},
		[]string{"device"},
	)

	// DivertedFlows tracks the flows a per-flow policy currently diverts.
	DivertedFlows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frr_diverted_flows",
			Help: "Number of flows pinned to the alternate path",
		},
		[]string{"device"},
	)

	// SimulatedSeconds tracks the simulation clock.
	SimulatedSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frr_simulated_seconds",
			Help: "Current simulation time in seconds",
		},
	)

	// EventsExecutedTotal counts scheduler events run.
	EventsExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frr_events_executed_total",
			Help: "Total number of simulation events executed",
		},
	)
)

// Observe exports the counters of d. Call it after the device's policy is
// set so reroute events carry the policy name.
func Observe(d *link.Device) {
	name := d.Name()
	txPackets := DevicePacketsTotal.WithLabelValues(name, "tx")
	txBytes := DeviceBytesTotal.WithLabelValues(name, "tx")
	rxPackets := DevicePacketsTotal.WithLabelValues(name, "rx")
	rxBytes := DeviceBytesTotal.WithLabelValues(name, "rx")

	d.OnTransmit(func(_ *link.Device, pkt *core.Packet) {
		txPackets.Inc()
		txBytes.Add(float64(pkt.Size()))
	})
	d.OnReceive(func(_ *link.Device, pkt *core.Packet) {
		rxPackets.Inc()
		rxBytes.Add(float64(pkt.Size()))
	})
	d.OnDrop(func(_ *link.Device, _ *core.Packet, reason link.DropReason) {
		DeviceDropsTotal.WithLabelValues(name, string(reason)).Inc()
	})
	d.OnReroute(func(dev *link.Device, ev reroute.Event) {
		policy := reroute.NameNone
		if p := dev.Policy(); p != nil {
			policy = p.Name()
		}
		if ev.Err != nil {
			RerouteFailuresTotal.WithLabelValues(name, policy).Inc()
			return
		}
		ReroutedPacketsTotal.WithLabelValues(name, policy).Inc()
		ReroutedBytesTotal.WithLabelValues(name, policy).Add(float64(ev.Bytes))
		if pf, ok := dev.Policy().(*reroute.PerFlowReroute); ok {
			DivertedFlows.WithLabelValues(name).Set(float64(len(pf.Diverted())))
		}
	})
	d.Queue().AddObserver(occupancy{QueueOccupancy.WithLabelValues(name)})
}

// occupancy mirrors queue depth into a gauge.
type occupancy struct{ g prometheus.Gauge }

func (o occupancy) OnEnqueue(_ *core.Packet, n int) { o.g.Set(float64(n)) }
func (o occupancy) OnDequeue(_ *core.Packet, n int) { o.g.Set(float64(n)) }
func (o occupancy) OnDrop(*core.Packet, int)        {}
