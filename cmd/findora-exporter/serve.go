package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	exporter "github.com/FindoraNetwork/findora-exporter"
	"github.com/FindoraNetwork/findora-exporter/config"
	"github.com/FindoraNetwork/findora-exporter/target"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates the process logger described by cfg. Logs go to stderr
// unless a file is configured, in which case they go to a rotating file.
// The returned closer releases the file.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var (
		out    = stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = rotating
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// exporterOptions maps the parsed config onto exporter options.
func exporterOptions(cfg *config.Config, targets []target.Target, logger *slog.Logger) []exporter.Option {
	opts := []exporter.Option{
		exporter.WithTargets(targets...),
		exporter.WithListenAddr(cfg.ListenAddr),
		exporter.WithTickInterval(cfg.TickInterval.Duration()),
		exporter.WithWorkers(cfg.Workers),
		exporter.WithPushOnStart(cfg.PushOnStartEnabled()),
		exporter.WithClientTimeout(cfg.Client.Timeout.Duration()),
		exporter.WithLogger(logger),
	}
	if cfg.Client.RequestsPerSecond > 0 {
		opts = append(opts, exporter.WithRateLimit(cfg.Client.RequestsPerSecond, cfg.Client.Burst))
	}
	return opts
}

// serveCmd starts polling and the metrics server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and serving metrics",
	Long: `Start the findora-exporter.

The exporter will:
  - Load configuration from the specified YAML file
  - Poll every configured target at its frequency
  - Serve Prometheus metrics on /metrics and target status on /api/status

The exporter runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  findora-exporter serve -c exporter.yaml
  findora-exporter serve --config /etc/findora-exporter/exporter.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}

	logger.Info("config loaded",
		"targets", len(cfg.Targets),
		"groups", len(cfg.Groups),
		"total", len(targets),
	)

	exp, err := exporter.New(exporterOptions(cfg, targets, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, exp, logger, shutdownTimeout)
}

// serve runs exp until ctx is cancelled, then gives it timeout to drain.
func serve(ctx context.Context, exp *exporter.Exporter, logger *slog.Logger, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := exp.Start(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Wait()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		logger.Info("shutdown signal received", "timeout", timeout.String())
		select {
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(timeout):
			logger.Warn("shutdown timed out",
				"timeout", timeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
