package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/frr/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a simulation configuration file",
	Long: `Validate a simulation configuration file without running it.

Examples:
  frr validate -c configs/frr.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	reroutes := 0
	for _, l := range cfg.Links {
		reroutes += len(l.Reroute)
	}
	fmt.Fprintf(w, "VALID: %d node(s), %d link(s), %d route(s), %d flow(s), %d reroute(s)\n",
		len(cfg.Nodes),
		len(cfg.Links),
		len(cfg.Routes),
		len(cfg.Flows),
		reroutes,
	)
	for _, l := range cfg.Links {
		for _, r := range l.Reroute {
			fmt.Fprintf(w, "  %s/%s: %s via %v\n", l.Name, r.From, r.Policy, r.Alternates)
		}
	}
	return nil
}
