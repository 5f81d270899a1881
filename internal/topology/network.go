// Package topology assembles a simulated network from configuration and
// runs it.
package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/frr/internal/config"
	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/metrics"
	"firestige.xyz/frr/internal/node"
	"firestige.xyz/frr/internal/queue"
	"firestige.xyz/frr/internal/reroute"
	"firestige.xyz/frr/internal/sim"
	"firestige.xyz/frr/internal/trace"
	"firestige.xyz/frr/internal/traffic"
)

// State is the lifecycle state of a Network.
type State string

const (
	// StateCreated indicates the network is built but not run.
	StateCreated State = "created"
	// StateRunning indicates the event loop is executing.
	StateRunning State = "running"
	// StateFinished indicates the run reached its end time.
	StateFinished State = "finished"
	// StateFailed indicates the run was interrupted or tracing failed.
	StateFailed State = "failed"
)

// Network owns every simulated object of one run.
type Network struct {
	cfg      config.Config
	sched    *sim.Scheduler
	nodes    []*node.Node
	byName   map[string]*node.Node
	devices  []*link.Device
	sources  []*traffic.Source
	sink     *traffic.Sink
	recorder *trace.Recorder

	state     State
	startedAt time.Time
	wallTime  time.Duration
	published uint64
}

// publishInterval is the simulated time between two updates of the run
// gauges while metrics are enabled.
const publishInterval = 100 * time.Millisecond

// DeviceName returns the name of the device node n has on link l.
func DeviceName(l, n string) string { return l + "/" + n }

// Build creates nodes, links, policies, routes and flows from cfg. cfg
// must have passed ValidateAndApplyDefaults.
func Build(cfg *config.Config) (*Network, error) {
	n := &Network{
		cfg:    *cfg,
		sched:  sim.NewScheduler(),
		byName: make(map[string]*node.Node, len(cfg.Nodes)),
		state:  StateCreated,
	}
	n.sink = traffic.NewSink(n.sched)

	for _, nc := range cfg.Nodes {
		nd := node.New(nc.Name)
		for _, a := range nc.Addresses {
			nd.AddAddress(a)
		}
		n.nodes = append(n.nodes, nd)
		n.byName[nc.Name] = nd
	}

	for _, lc := range cfg.Links {
		if err := n.addLink(lc); err != nil {
			return nil, err
		}
	}
	for _, lc := range cfg.Links {
		for _, rc := range lc.Reroute {
			if err := n.attachPolicy(lc.Name, rc); err != nil {
				return nil, err
			}
		}
	}
	for _, rc := range cfg.Routes {
		if err := n.addRoute(rc); err != nil {
			return nil, err
		}
	}
	for _, fc := range cfg.Flows {
		if err := n.addFlow(fc); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		for _, d := range n.devices {
			metrics.Observe(d)
		}
	}
	if err := n.setupTracing(); err != nil {
		return nil, err
	}

	slog.Info("network built",
		"nodes", len(n.nodes),
		"devices", len(n.devices),
		"flows", len(n.sources))
	return n, nil
}

func (n *Network) addLink(lc config.LinkConfig) error {
	a, b := n.byName[lc.A], n.byName[lc.B]
	if a == nil || b == nil {
		return fmt.Errorf("link %s: %w", lc.Name, core.ErrUnknownNode)
	}
	devCfg := link.Config{
		Rate:          lc.Rate,
		InterframeGap: n.cfg.Simulation.InterframeGap,
		QueueCapacity: lc.QueueCapacity,
		Threshold:     queue.Threshold{Percent: lc.ThresholdPercent},
	}
	da, db, _ := link.Connect(n.sched, DeviceName(lc.Name, lc.A), DeviceName(lc.Name, lc.B), devCfg, lc.Delay)
	a.AddDevice(da)
	b.AddDevice(db)
	n.devices = append(n.devices, da, db)
	return nil
}

func (n *Network) attachPolicy(linkName string, rc config.RerouteConfig) error {
	dev, err := n.endpoint(linkName, rc.From)
	if err != nil {
		return err
	}
	pol, err := reroute.New(rc.Policy, reroute.Options{
		MaxDiverted: rc.MaxDiverted,
		Hook:        dev.RecordReroute,
	})
	if err != nil {
		return fmt.Errorf("device %s: %w", dev.Name(), err)
	}
	dev.SetPolicy(pol)
	for _, alt := range rc.Alternates {
		target, err := n.endpoint(alt, rc.From)
		if err != nil {
			return err
		}
		dev.AddAlternateTarget(target)
	}
	slog.Debug("policy attached", "device", dev.Name(), "policy", pol.Name(), "alternates", rc.Alternates)
	return nil
}

func (n *Network) addRoute(rc config.RouteConfig) error {
	nd, ok := n.byName[rc.Node]
	if !ok {
		return fmt.Errorf("route on %s: %w", rc.Node, core.ErrUnknownNode)
	}
	dev, err := n.endpoint(rc.Via, rc.Node)
	if err != nil {
		return err
	}
	return nd.AddRoute(rc.Prefix, dev)
}

func (n *Network) addFlow(fc config.FlowConfig) error {
	from, ok := n.byName[fc.From]
	if !ok {
		return fmt.Errorf("flow %s: %w", fc.Name, core.ErrUnknownNode)
	}
	to, ok := n.byName[fc.To]
	if !ok {
		return fmt.Errorf("flow %s: %w", fc.Name, core.ErrUnknownNode)
	}
	src, err := traffic.NewSource(fc.Flow(), n.sched, from)
	if err != nil {
		return err
	}
	n.sources = append(n.sources, src)
	n.sink.Attach(to)
	return nil
}

func (n *Network) setupTracing() error {
	sc := n.cfg.Simulation
	if sc.TraceDir == "" || (!sc.Pcap && !sc.QueueTrace) {
		return nil
	}
	rec, err := trace.NewRecorder(sc.TraceDir, n.sched)
	if err != nil {
		return err
	}
	for _, d := range n.devices {
		if sc.Pcap {
			err = rec.CaptureDevice(d)
		}
		if err == nil && sc.QueueTrace {
			err = rec.TraceQueue(d)
		}
		if err != nil {
			return errors.Join(err, rec.Close())
		}
	}
	n.recorder = rec
	return nil
}

// endpoint returns the device node has on the named link.
func (n *Network) endpoint(linkName, nodeName string) (*link.Device, error) {
	nd, ok := n.byName[nodeName]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeName, core.ErrUnknownNode)
	}
	d, ok := nd.Device(DeviceName(linkName, nodeName))
	if !ok {
		return nil, fmt.Errorf("link %s on node %s: %w", linkName, nodeName, core.ErrUnknownLink)
	}
	return d, nil
}

// Run starts every flow and executes events until the configured
// duration elapses or ctx is done. Trace files are closed either way.
func (n *Network) Run(ctx context.Context) error {
	if n.state != StateCreated {
		return fmt.Errorf("cannot run network in state %s", n.state)
	}
	n.setState(StateRunning)
	n.startedAt = time.Now()

	for _, s := range n.sources {
		s.Start()
	}
	if n.cfg.Metrics.Enabled {
		var tick func()
		tick = func() {
			n.publish()
			n.sched.Schedule(publishInterval, tick)
		}
		n.sched.ScheduleAt(publishInterval, tick)
	}
	runErr := n.sched.Run(ctx, n.cfg.Simulation.Duration)
	n.wallTime = time.Since(n.startedAt)

	if n.cfg.Metrics.Enabled {
		n.publish()
	}

	var closeErr error
	if n.recorder != nil {
		closeErr = n.recorder.Close()
	}
	if err := errors.Join(runErr, closeErr); err != nil {
		n.setState(StateFailed)
		return err
	}
	n.setState(StateFinished)
	slog.Info("simulation finished",
		"sim_time", n.sched.Now(),
		"events", n.sched.Executed(),
		"wall_time", n.wallTime)
	return nil
}

// publish mirrors the clock and the executed event count into the run
// gauges. The counter only receives what ran since the last call.
func (n *Network) publish() {
	ran := n.sched.Executed()
	metrics.SimulatedSeconds.Set(n.sched.Now().Seconds())
	metrics.EventsExecutedTotal.Add(float64(ran - n.published))
	n.published = ran
}

func (n *Network) setState(s State) {
	n.state = s
	slog.Debug("network state changed", "state", s)
}

// State returns the lifecycle state.
func (n *Network) State() State { return n.state }

// Config returns the configuration the network was built from.
func (n *Network) Config() config.Config { return n.cfg }

// Scheduler returns the event scheduler.
func (n *Network) Scheduler() *sim.Scheduler { return n.sched }

// Nodes returns the nodes in configuration order.
func (n *Network) Nodes() []*node.Node { return n.nodes }

// Node returns the node called name.
func (n *Network) Node(name string) (*node.Node, bool) {
	nd, ok := n.byName[name]
	return nd, ok
}

// Devices returns every device, two per link in configuration order.
func (n *Network) Devices() []*link.Device { return n.devices }

// Device returns the device node has on link.
func (n *Network) Device(linkName, nodeName string) (*link.Device, bool) {
	d, err := n.endpoint(linkName, nodeName)
	return d, err == nil
}

// Sources returns the traffic sources in configuration order.
func (n *Network) Sources() []*traffic.Source { return n.sources }

// Sink returns the sink shared by every flow destination.
func (n *Network) Sink() *traffic.Sink { return n.sink }

// WallTime returns how long Run took.
func (n *Network) WallTime() time.Duration { return n.wallTime }
