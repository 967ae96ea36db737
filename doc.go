// Package exporter polls Findora and EVM nodes and exports what it reads as
// Prometheus gauges.
//
// Each [target.Target] pairs a node address with a task kind: consensus
// power, block freshness, validator count, bridge balances and supplies,
// relayer balances or an exchange price. The exporter keeps one gauge per
// target, executes every target on its own cadence from a fixed worker pool,
// and serves the gauges over HTTP.
//
// # Quick Start
//
//	consensus, _ := target.New("https://prod-mainnet.prod.findora.org:26657", target.ConsensusPower)
//	exp, _ := exporter.New(exporter.WithTargets(consensus))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	exp.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// The exporter uses the functional options pattern:
//
//	exp, err := exporter.New(
//	    exporter.WithTargets(targets...),
//	    exporter.WithTickInterval(30 * time.Second),
//	    exporter.WithListenAddr("0.0.0.0:9090"),
//	    exporter.WithWorkers(8),
//	    exporter.WithRateLimit(10, 2),
//	)
//
// Targets can carry their own frequency and registry namespace:
//
//	supply, err := target.New("https://rpc.example.org:8545", target.BridgedSupply,
//	    target.WithOptions(target.BridgedSupplyOptions{TokenAddress: token, Decimals: 6}),
//	    target.WithFrequency(time.Minute),
//	    target.WithNamespace("findora_mainnet", "env", "mainnet"),
//	)
//
// The config package builds targets from YAML for the standalone binary.
//
// # Architecture
//
//   - internal/scale: fixed-point amount to gauge conversion
//   - internal/metric: one gauge per target, shared and namespaced registries
//   - internal/collector: HTTP and JSON-RPC client plus one collector per kind
//   - internal/task: binds targets to collectors and gauges
//   - internal/poller: tick-driven scheduler and worker pool
//   - internal/store: last known status per target
//   - internal/server: /metrics, /api/status and /healthz
//
// The internal packages are not part of the public API and may change
// without notice.
package exporter
