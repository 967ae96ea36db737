package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	exporter "github.com/FindoraNetwork/findora-exporter"
	"github.com/FindoraNetwork/findora-exporter/config"
	"github.com/FindoraNetwork/findora-exporter/target"
)

// validateCmd validates a config file without starting the exporter.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a findora-exporter configuration file without starting it.

This command parses the YAML, expands environment variables, validates all
fields, builds every target, including those generated by groups, and
builds the metric registry exactly as serve does. It's
useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  findora-exporter validate -c exporter.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// same construction as serve: registry conflicts surface here too
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := exporter.New(exporterOptions(cfg, targets, discard)...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	perKind := make(map[target.Kind]int)
	for _, t := range targets {
		perKind[t.Kind()]++
	}

	direct := len(cfg.Targets)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.ListenAddr)
	fmt.Fprintf(out, "  Tick interval:  %s\n", cfg.TickInterval.Duration())
	fmt.Fprintf(out, "  Workers:        %d\n", cfg.Workers)
	fmt.Fprintf(out, "  Targets:        %d direct + %d from groups = %d total\n",
		direct, len(targets)-direct, len(targets))
	for _, k := range target.Kinds() {
		if n := perKind[k]; n > 0 {
			fmt.Fprintf(out, "    %-27s %d\n", k, n)
		}
	}

	return nil
}
