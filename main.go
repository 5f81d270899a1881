// Package main is the entry point for the frr fast-reroute simulator.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/frr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
