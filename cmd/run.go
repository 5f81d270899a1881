package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/frr/internal/config"
	"firestige.xyz/frr/internal/log"
	"firestige.xyz/frr/internal/metrics"
	"firestige.xyz/frr/internal/report"
	"firestige.xyz/frr/internal/topology"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Run the simulation described by the config file and print a YAML
report of per-flow loss and delay and per-device counters.

Examples:
  frr run -c configs/frr.yml
  frr run -c configs/frr.yml --policy safe-tail --duration 5s
  frr run -c configs/frr.yml --no-reroute --report baseline.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runOpts.apply(cfg); err != nil {
			exitWithError("invalid override", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to init logging", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runSimulation(ctx, cfg, os.Stdout); err != nil {
			slog.Error("simulation failed", "error", err)
			os.Exit(1)
		}
	},
}

// runOptions are command line overrides of the config file.
type runOptions struct {
	policy    string
	duration  time.Duration
	noReroute bool
	report    string
	traceDir  string
	linger    time.Duration
}

var runOpts runOptions

func init() {
	runCmd.Flags().StringVarP(&runOpts.policy, "policy", "p", "",
		"policy for every reroute entry, overriding the config")
	runCmd.Flags().DurationVarP(&runOpts.duration, "duration", "d", 0,
		"simulated time to run")
	runCmd.Flags().BoolVar(&runOpts.noReroute, "no-reroute", false,
		"disable rerouting on every device")
	runCmd.Flags().StringVarP(&runOpts.report, "report", "r", "",
		"report output path (\"-\" for stdout)")
	runCmd.Flags().StringVar(&runOpts.traceDir, "trace-dir", "",
		"directory for pcap and queue traces")
	runCmd.Flags().DurationVar(&runOpts.linger, "metrics-linger", 0,
		"keep serving metrics this long after the run (0 until interrupted)")
}

// apply folds the overrides into cfg and validates the result again.
func (o runOptions) apply(cfg *config.Config) error {
	if o.policy != "" {
		cfg.Simulation.Policy = o.policy
		for i := range cfg.Links {
			for j := range cfg.Links[i].Reroute {
				cfg.Links[i].Reroute[j].Policy = o.policy
			}
		}
	}
	if o.duration > 0 {
		cfg.Simulation.Duration = o.duration
	}
	if o.noReroute {
		cfg.Simulation.EnableRerouting = false
	}
	if o.report != "" {
		cfg.Simulation.ReportPath = o.report
	}
	if o.traceDir != "" {
		cfg.Simulation.TraceDir = o.traceDir
		cfg.Simulation.Pcap = true
		cfg.Simulation.QueueTrace = true
	}
	if o.linger > 0 {
		cfg.Metrics.Linger = o.linger
	}
	return cfg.ValidateAndApplyDefaults()
}

// runSimulation builds and runs the network, then writes the report to
// the configured path or to out. With metrics enabled the endpoint stays
// up after the report until ctx is done or the linger elapses.
func runSimulation(ctx context.Context, cfg *config.Config, out io.Writer) error {
	var srv *metrics.Server
	if cfg.Metrics.Enabled {
		srv = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				slog.Warn("metrics server stop error", "error", err)
			}
		}()
	}

	n, err := topology.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build network: %w", err)
	}
	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("simulation run failed: %w", err)
	}
	if err := writeReport(n, cfg.Simulation.ReportPath, out); err != nil {
		return err
	}

	if srv != nil {
		linger(ctx, srv.Addr(), cfg.Metrics.Linger)
	}
	return nil
}

func writeReport(n *topology.Network, path string, out io.Writer) error {
	r := report.New(n)
	if path == "" || path == "-" {
		return r.Write(out)
	}
	if err := r.WriteFile(path); err != nil {
		return err
	}
	slog.Info("report written", "path", path, "run_id", r.RunID)
	return nil
}

// linger blocks until ctx is done or d elapses. A zero d waits for ctx only.
func linger(ctx context.Context, addr string, d time.Duration) {
	slog.Info("serving metrics after run", "addr", addr, "linger", d)
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	<-ctx.Done()
}
