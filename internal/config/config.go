// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/traffic"
)

// Config represents the top-level configuration of a simulation run.
// Maps to the `frr:` root key in YAML.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Nodes      []NodeConfig     `mapstructure:"nodes"`
	Links      []LinkConfig     `mapstructure:"links"`
	Routes     []RouteConfig    `mapstructure:"routes"`
	Flows      []FlowConfig     `mapstructure:"flows"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text / console
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`

	// Linger keeps the endpoint up after the run. Zero serves until the
	// process is interrupted.
	Linger time.Duration `mapstructure:"linger"`
}

// ─── Simulation ───

// SimulationConfig holds run-wide settings and link defaults.
type SimulationConfig struct {
	Duration         time.Duration `mapstructure:"duration"`
	EnableRerouting  bool          `mapstructure:"enable_rerouting"` // false forces policy "none" everywhere
	Policy           string        `mapstructure:"policy"`           // default for reroute entries without one
	QueueCapacity    int           `mapstructure:"queue_capacity"`   // packets
	ThresholdPercent int           `mapstructure:"threshold_percent"`
	InterframeGap    time.Duration `mapstructure:"interframe_gap"`
	TraceDir         string        `mapstructure:"trace_dir"` // empty disables tracing
	Pcap             bool          `mapstructure:"pcap"`
	QueueTrace       bool          `mapstructure:"queue_trace"`
	ReportPath       string        `mapstructure:"report_path"` // empty prints to stdout
}

// ─── Topology ───

// NodeConfig declares a host or router.
type NodeConfig struct {
	Name      string       `mapstructure:"name"`
	Addresses []netip.Addr `mapstructure:"addresses"`
}

// LinkConfig declares a point-to-point link between nodes A and B. Each
// end gets a device named "<link>/<node>".
type LinkConfig struct {
	Name             string          `mapstructure:"name"`
	A                string          `mapstructure:"a"`
	B                string          `mapstructure:"b"`
	Rate             link.DataRate   `mapstructure:"rate"`
	Delay            time.Duration   `mapstructure:"delay"`
	QueueCapacity    int             `mapstructure:"queue_capacity"`    // 0 = simulation default
	ThresholdPercent int             `mapstructure:"threshold_percent"` // 0 = simulation default
	Reroute          []RerouteConfig `mapstructure:"reroute"`
}

// RerouteConfig attaches a rerouting policy to the device of one link end.
// Alternates name other links of the same node; the node's devices on
// those links become alternate targets, in order.
type RerouteConfig struct {
	From        string   `mapstructure:"from"`
	Policy      string   `mapstructure:"policy"`
	Alternates  []string `mapstructure:"alternates"`
	MaxDiverted int      `mapstructure:"max_diverted"`
}

// RouteConfig installs a static route on a node.
type RouteConfig struct {
	Node   string       `mapstructure:"node"`
	Prefix netip.Prefix `mapstructure:"prefix"`
	Via    string       `mapstructure:"via"` // link name
}

// FlowConfig declares a traffic source on From sending to To.
type FlowConfig struct {
	Name       string        `mapstructure:"name"`
	From       string        `mapstructure:"from"`
	To         string        `mapstructure:"to"`
	Protocol   string        `mapstructure:"protocol"` // udp / tcp
	Src        netip.Addr    `mapstructure:"src"`      // default: first address of From
	Dst        netip.Addr    `mapstructure:"dst"`      // default: first address of To
	SrcPort    uint16        `mapstructure:"src_port"`
	DstPort    uint16        `mapstructure:"dst_port"`
	Rate       link.DataRate `mapstructure:"rate"`
	PacketSize int           `mapstructure:"packet_size"`
	Start      time.Duration `mapstructure:"start"`
	Stop       time.Duration `mapstructure:"stop"`
	MaxBytes   uint64        `mapstructure:"max_bytes"`
	OnTime     time.Duration `mapstructure:"on_time"`
	OffTime    time.Duration `mapstructure:"off_time"`
}

// Flow converts the entry into a traffic flow description.
func (f FlowConfig) Flow() traffic.Flow {
	return traffic.Flow{
		Name:       f.Name,
		Src:        f.Src,
		Dst:        f.Dst,
		SrcPort:    f.SrcPort,
		DstPort:    f.DstPort,
		Protocol:   traffic.Protocol(f.Protocol),
		PacketSize: f.PacketSize,
		Rate:       f.Rate,
		Start:      f.Start,
		Stop:       f.Stop,
		MaxBytes:   f.MaxBytes,
		OnTime:     f.OnTime,
		OffTime:    f.OffTime,
	}
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `frr: ...`.
type configRoot struct {
	FRR Config `mapstructure:"frr"`
}

// Load loads configuration from file.
// The YAML file uses `frr:` as root key; env vars use the FRR_ prefix
// (e.g. FRR_LOG_LEVEL, FRR_SIMULATION_DURATION).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Key "frr.log.level" maps to env "FRR_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.FRR

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// decodeHook turns strings into durations, data rates, addresses and
// prefixes, and comma separated env values into slices.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "frr." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("frr.log.level", "info")
	v.SetDefault("frr.log.format", "console")
	v.SetDefault("frr.log.outputs.file.enabled", false)
	v.SetDefault("frr.log.outputs.file.path", "frr.log")
	v.SetDefault("frr.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("frr.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("frr.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("frr.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("frr.metrics.enabled", false)
	v.SetDefault("frr.metrics.listen", ":9091")
	v.SetDefault("frr.metrics.path", "/metrics")
	v.SetDefault("frr.metrics.linger", "0s")

	// Simulation defaults
	v.SetDefault("frr.simulation.duration", "15s")
	v.SetDefault("frr.simulation.enable_rerouting", true)
	v.SetDefault("frr.simulation.policy", "lfa")
	v.SetDefault("frr.simulation.queue_capacity", 100)
	v.SetDefault("frr.simulation.threshold_percent", 50)
	v.SetDefault("frr.simulation.interframe_gap", "0s")
	v.SetDefault("frr.simulation.pcap", true)
	v.SetDefault("frr.simulation.queue_trace", true)
}
