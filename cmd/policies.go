package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/frr/internal/reroute"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the available rerouting policies",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPolicies(os.Stdout); err != nil {
			exitWithError("failed to list policies", err)
		}
	},
}

func runPolicies(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, name := range reroute.Names() {
		desc, _ := reroute.Describe(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, desc)
	}
	return tw.Flush()
}
