package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FindoraNetwork/findora-exporter/internal/collector"
	"github.com/FindoraNetwork/findora-exporter/internal/metric"
	"github.com/FindoraNetwork/findora-exporter/internal/poller"
	"github.com/FindoraNetwork/findora-exporter/internal/server"
	"github.com/FindoraNetwork/findora-exporter/internal/store"
	"github.com/FindoraNetwork/findora-exporter/internal/task"
	"github.com/FindoraNetwork/findora-exporter/target"
)

const (
	defaultTickInterval  = 15 * time.Second
	defaultWorkers       = 4
	defaultListenAddr    = "127.0.0.1:9090"
	defaultClientTimeout = 10 * time.Second
)

// ErrAlreadyStarted is returned by [Exporter.Start] on a second call.
var ErrAlreadyStarted = errors.New("exporter already started")

// Exporter polls targets and serves their values as Prometheus gauges.
//
// An Exporter is created using [New] with functional options and started
// with [Exporter.Start]. The metric registry and task bindings are built by
// New, so configuration errors surface before anything is started.
//
// The typical lifecycle is:
//
//	exp, err := exporter.New(exporter.WithTargets(targets...))
//	if err != nil {
//	    slog.Error("failed to create exporter", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	exp.Start(ctx) // blocks until context cancelled
//
// An Exporter can be started once.
type Exporter struct {
	targets         []target.Target
	tickInterval    time.Duration
	workers         int
	listenAddr      string
	pushOnStart     bool
	logger          *slog.Logger
	statusCallbacks []func(Result)

	client   *collector.Client
	registry *metric.Registry
	bindings []*task.Binding
	selfReg  *prometheus.Registry
	metrics  *poller.Metrics
	store    *store.MemoryStore

	started atomic.Bool

	mu   sync.Mutex
	addr string
}

// New creates a new [Exporter] instance with the given options.
//
// At least one target must be configured via [WithTargets]. Other options
// have defaults:
//   - Tick interval: 15 seconds
//   - Workers: 4
//   - Listen address: 127.0.0.1:9090
//   - Client timeout: 10 seconds, no rate limit
//   - Push on start: enabled
//
// Returns an error wrapping [target.ErrConfig] if two targets share an
// identity or would export the same series, and an error if any option is
// invalid.
func New(opts ...Option) (*Exporter, error) {
	cfg := &exporterConfig{
		tickInterval:  defaultTickInterval,
		workers:       defaultWorkers,
		listenAddr:    defaultListenAddr,
		pushOnStart:   true,
		clientTimeout: defaultClientTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", target.ErrConfig)
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := metric.Build(cfg.targets)
	if err != nil {
		return nil, err
	}

	client := collector.NewClient(
		collector.WithTimeout(cfg.clientTimeout),
		collector.WithRateLimit(cfg.ratePerSecond, cfg.rateBurst),
	)

	table := collector.NewTable(client)
	for kind, fn := range cfg.collectors {
		table = table.With(kind, fn)
	}

	bindings, err := task.Build(cfg.targets, reg, table)
	if err != nil {
		client.Close()
		return nil, err
	}

	selfReg := prometheus.NewRegistry()
	metrics, err := poller.NewMetrics(selfReg)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("register scheduler metrics: %w", err)
	}

	targets := make([]target.Target, len(cfg.targets))
	copy(targets, cfg.targets)

	return &Exporter{
		targets:         targets,
		tickInterval:    cfg.tickInterval,
		workers:         cfg.workers,
		listenAddr:      cfg.listenAddr,
		pushOnStart:     cfg.pushOnStart,
		logger:          logger,
		statusCallbacks: cfg.statusCallbacks,
		client:          client,
		registry:        reg,
		bindings:        bindings,
		selfReg:         selfReg,
		metrics:         metrics,
		store:           store.NewMemoryStore(targets...),
	}, nil
}

// Start begins polling targets and serving metrics.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The HTTP server binds the listen address and serves /metrics,
//     /api/status and /healthz
//   - Every target is executed once immediately (unless push on start is
//     disabled), then at its own frequency or the tick interval
//   - Failures are logged and leave the previous gauge value in place
//
// On cancellation Start stops the scheduler, waits for executions already
// running, and closes idle connections before returning.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to bind or if Start was already called.
func (e *Exporter) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer e.client.Close()

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	e.logger.Info("exporter starting",
		"target_count", len(e.targets),
		"tick_interval", e.tickInterval.String(),
		"workers", e.workers,
	)

	httpServer := server.NewServer(e.store, e.Gatherer(), e.listenAddr, e.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	e.mu.Lock()
	e.addr = httpServer.Addr()
	e.mu.Unlock()

	scheduler := poller.NewScheduler(e.bindings, poller.Config{
		TickInterval: e.tickInterval,
		Workers:      e.workers,
		PushOnStart:  e.pushOnStart,
		Observer:     e.observe,
		Metrics:      e.metrics,
	}, e.logger)
	scheduler.Start(ctx)

	e.logger.Info("polling configured", "base_interval", scheduler.BaseInterval().String())

	<-ctx.Done()
	scheduler.Stop()
	e.logger.Info("exporter stopped")
	return nil
}

// observe feeds one outcome into the store, then the callbacks.
func (e *Exporter) observe(o poller.Outcome) {
	e.store.Update(store.Result{
		ID:        o.ID,
		Kind:      o.Kind,
		Address:   o.Address,
		Value:     o.Value,
		Err:       o.Err,
		Duration:  o.Duration,
		CheckedAt: o.CheckedAt,
	})

	if len(e.statusCallbacks) == 0 {
		return
	}
	result := Result{
		ID:        o.ID,
		Kind:      o.Kind,
		Address:   o.Address,
		Value:     o.Value,
		Err:       o.Err,
		Duration:  o.Duration,
		CheckedAt: o.CheckedAt,
	}
	for _, cb := range e.statusCallbacks {
		invokeCallbackSafe(cb, result, e.logger)
	}
}

// Targets returns a copy of the configured targets.
func (e *Exporter) Targets() []target.Target {
	cp := make([]target.Target, len(e.targets))
	copy(cp, e.targets)
	return cp
}

// Addr returns the address the server is bound to once started, or the
// configured listen address before that.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.addr != "" {
		return e.addr
	}
	return e.listenAddr
}

// Gatherer returns a gatherer over every target gauge and the scheduler's
// own metrics, for mounting on an existing HTTP server.
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{e.registry.Gatherer(), e.selfReg}
}

// Gather returns the current value of every target gauge.
func (e *Exporter) Gather() ([]Snapshot, error) {
	return e.registry.Gather()
}

// Status returns the last known status of every target, in target order.
func (e *Exporter) Status() []TargetStatus {
	return e.store.GetAll()
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Result), result Result, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"task", result.Kind,
				"address", result.Address,
			)
		}
	}()
	cb(result)
}
