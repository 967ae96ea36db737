// Package main is the entry point for the findora-exporter CLI.
//
// Usage:
//
//	findora-exporter serve -c config.yaml    # Start polling and serving metrics
//	findora-exporter validate -c config.yaml # Validate configuration
//	findora-exporter version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help; actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "findora-exporter",
	Short: "Prometheus exporter for Findora nodes and bridges",
	Long: `findora-exporter polls Findora Tendermint and EVM endpoints and exposes
what it reads as Prometheus gauges.

Quick start:
  1. Create a config file (exporter.yaml)
  2. Run: findora-exporter serve -c exporter.yaml
  3. Scrape http://127.0.0.1:9090/metrics

Example config:
  tick_interval: 15s
  targets:
    - address: https://prod-mainnet.prod.findora.org:26657
      task: consensus_power
    - address: https://prod-mainnet.prod.findora.org:8545
      task: bridged_supply
      options:
        token_address: "0x..."
        decimals: 6`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this findora-exporter binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "findora-exporter %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
