package config

import (
	"fmt"
	"slices"

	"firestige.xyz/frr/internal/core"
	"firestige.xyz/frr/internal/reroute"
)

// ValidateAndApplyDefaults validates configuration and fills per-link and
// per-flow defaults from the simulation section.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "console":
	default:
		return invalid("invalid log format: %s (must be json/text/console)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Simulation ──
	sim := &cfg.Simulation
	if sim.Duration <= 0 {
		return invalid("simulation.duration must be positive, got %s", sim.Duration)
	}
	if sim.QueueCapacity < 1 {
		return invalid("simulation.queue_capacity must be at least 1, got %d", sim.QueueCapacity)
	}
	if err := checkThreshold("simulation.threshold_percent", sim.ThresholdPercent); err != nil {
		return err
	}
	if err := checkPolicy("simulation.policy", sim.Policy); err != nil {
		return err
	}
	if (sim.Pcap || sim.QueueTrace) && sim.TraceDir == "" {
		sim.Pcap, sim.QueueTrace = false, false
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Linger < 0 {
		return invalid("metrics.linger must not be negative")
	}

	// ── Topology ──
	if len(cfg.Nodes) == 0 {
		return invalid("at least one node is required")
	}
	nodes := make(map[string]*NodeConfig, len(cfg.Nodes))
	for i := range cfg.Nodes {
		n := &cfg.Nodes[i]
		if n.Name == "" {
			return invalid("nodes[%d]: name is required", i)
		}
		if _, dup := nodes[n.Name]; dup {
			return invalid("duplicate node %q", n.Name)
		}
		nodes[n.Name] = n
	}

	links := make(map[string]*LinkConfig, len(cfg.Links))
	for i := range cfg.Links {
		l := &cfg.Links[i]
		if err := cfg.checkLink(i, l, nodes); err != nil {
			return err
		}
		if _, dup := links[l.Name]; dup {
			return invalid("duplicate link %q", l.Name)
		}
		links[l.Name] = l
	}
	for i := range cfg.Links {
		if err := cfg.checkReroute(&cfg.Links[i], links); err != nil {
			return err
		}
	}

	for i, r := range cfg.Routes {
		if _, ok := nodes[r.Node]; !ok {
			return fmt.Errorf("routes[%d]: node %q: %w", i, r.Node, core.ErrUnknownNode)
		}
		l, ok := links[r.Via]
		if !ok {
			return fmt.Errorf("routes[%d]: via %q: %w", i, r.Via, core.ErrUnknownLink)
		}
		if l.A != r.Node && l.B != r.Node {
			return invalid("routes[%d]: link %q does not touch node %q", i, r.Via, r.Node)
		}
		if !r.Prefix.IsValid() {
			return invalid("routes[%d]: prefix is required", i)
		}
	}

	keys := make(map[core.FlowKey]string, len(cfg.Flows))
	for i := range cfg.Flows {
		f := &cfg.Flows[i]
		if err := checkFlow(i, f, nodes); err != nil {
			return err
		}
		// Sinks account by 5-tuple, so two flows sharing one would merge.
		key := f.Flow().Key()
		if other, dup := keys[key]; dup {
			return invalid("flow %s: same 5-tuple as flow %s (%s)", f.Name, other, key)
		}
		keys[key] = f.Name
	}
	return nil
}

func (cfg *Config) checkLink(i int, l *LinkConfig, nodes map[string]*NodeConfig) error {
	if l.Name == "" {
		return invalid("links[%d]: name is required", i)
	}
	for _, end := range []string{l.A, l.B} {
		if _, ok := nodes[end]; !ok {
			return fmt.Errorf("link %s: node %q: %w", l.Name, end, core.ErrUnknownNode)
		}
	}
	if l.A == l.B {
		return invalid("link %s: both ends on node %q", l.Name, l.A)
	}
	if l.Rate == 0 {
		return invalid("link %s: rate is required", l.Name)
	}
	if l.Delay < 0 {
		return invalid("link %s: negative delay", l.Name)
	}
	if l.QueueCapacity == 0 {
		l.QueueCapacity = cfg.Simulation.QueueCapacity
	}
	if l.QueueCapacity < 0 {
		return invalid("link %s: negative queue capacity", l.Name)
	}
	if l.ThresholdPercent == 0 {
		l.ThresholdPercent = cfg.Simulation.ThresholdPercent
	}
	return checkThreshold("link "+l.Name+" threshold_percent", l.ThresholdPercent)
}

func (cfg *Config) checkReroute(l *LinkConfig, links map[string]*LinkConfig) error {
	var seen []string
	for j := range l.Reroute {
		r := &l.Reroute[j]
		if r.From != l.A && r.From != l.B {
			return invalid("link %s: reroute from %q, not an end of the link", l.Name, r.From)
		}
		if slices.Contains(seen, r.From) {
			return invalid("link %s: more than one reroute entry for %q", l.Name, r.From)
		}
		seen = append(seen, r.From)

		if r.Policy == "" {
			r.Policy = cfg.Simulation.Policy
		}
		if !cfg.Simulation.EnableRerouting {
			r.Policy = reroute.NameNone
		}
		if err := checkPolicy("link "+l.Name+" policy", r.Policy); err != nil {
			return err
		}
		for _, alt := range r.Alternates {
			al, ok := links[alt]
			if !ok {
				return fmt.Errorf("link %s: alternate %q: %w", l.Name, alt, core.ErrUnknownLink)
			}
			if alt == l.Name {
				return invalid("link %s: a link cannot be its own alternate", l.Name)
			}
			if al.A != r.From && al.B != r.From {
				return invalid("link %s: alternate %q does not start at node %q", l.Name, alt, r.From)
			}
		}
	}
	return nil
}

func checkFlow(i int, f *FlowConfig, nodes map[string]*NodeConfig) error {
	if f.Name == "" {
		f.Name = fmt.Sprintf("flow%d", i)
	}
	from, ok := nodes[f.From]
	if !ok {
		return fmt.Errorf("flow %s: from %q: %w", f.Name, f.From, core.ErrUnknownNode)
	}
	to, ok := nodes[f.To]
	if !ok {
		return fmt.Errorf("flow %s: to %q: %w", f.Name, f.To, core.ErrUnknownNode)
	}
	if f.Protocol == "" {
		f.Protocol = "udp"
	}
	if !f.Src.IsValid() {
		if len(from.Addresses) == 0 {
			return invalid("flow %s: node %q has no address", f.Name, f.From)
		}
		f.Src = from.Addresses[0]
	}
	if !f.Dst.IsValid() {
		if len(to.Addresses) == 0 {
			return invalid("flow %s: node %q has no address", f.Name, f.To)
		}
		f.Dst = to.Addresses[0]
	}
	if f.SrcPort == 0 {
		f.SrcPort = uint16(49152 + i)
	}
	if f.DstPort == 0 {
		return invalid("flow %s: dst_port is required", f.Name)
	}
	if f.PacketSize == 0 {
		f.PacketSize = 1024
	}
	return f.Flow().Validate()
}

func checkThreshold(field string, pct int) error {
	if pct < 1 || pct > 100 {
		return invalid("%s must be within [1, 100], got %d", field, pct)
	}
	return nil
}

func checkPolicy(field, name string) error {
	if _, ok := reroute.Describe(name); !ok {
		return fmt.Errorf("%s: %q (known: %v): %w", field, name, reroute.Names(), core.ErrUnknownPolicy)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrConfigInvalid)
}
