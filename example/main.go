package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"

	exporter "github.com/FindoraNetwork/findora-exporter"
	"github.com/FindoraNetwork/findora-exporter/internal/mocknode"
	"github.com/FindoraNetwork/findora-exporter/target"
)

const (
	token   = "0x1111111111111111111111111111111111111111"
	handler = "0x2222222222222222222222222222222222222222"
)

func main() {
	// start a local fake node so the demo needs no network access
	node := mocknode.New()
	node.SetTokenBalance(token, handler, uint256.NewInt(538800000000))
	node.SetTokenSupply(token, new(uint256.Int).Mul(uint256.NewInt(1_250_000), uint256.NewInt(1_000_000)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		slog.Error("failed to start mock node", "error", err)
		os.Exit(1)
	}
	go func() { _ = http.Serve(ln, node.Handler()) }()
	nodeURL := "http://" + ln.Addr().String()

	var targets []target.Target
	for _, kind := range []target.Kind{target.ConsensusPower, target.NetworkFunctional, target.TotalCountOfValidators} {
		t, err := target.New(nodeURL, kind)
		if err != nil {
			slog.Error("failed to create target", "error", err)
			os.Exit(1)
		}
		targets = append(targets, t)
	}

	// bridge balance with its own polling interval and registry namespace
	balance, err := target.New(nodeURL, target.BridgedBalance,
		target.WithOptions(target.BridgedBalanceOptions{HandlerAddress: handler, TokenAddress: token, Decimals: 9}),
		target.WithFrequency(30*time.Second),
		target.WithNamespace("findora_demo", "env", "local"),
	)
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}
	supply, err := target.New(nodeURL, target.BridgedSupply,
		target.WithOptions(target.BridgedSupplyOptions{TokenAddress: token, Decimals: 6}),
	)
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}
	targets = append(targets, balance, supply)

	exp, err := exporter.New(
		exporter.WithTargets(targets...),
		exporter.WithTickInterval(5*time.Second),
		exporter.WithListenAddr("127.0.0.1:9090"),
		exporter.WithStatusCallback(func(r exporter.Result) {
			if !r.OK() {
				slog.Warn("target failing", "task", r.Kind, "error", r.Err)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create exporter", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  findora-exporter demo")
	fmt.Println()
	fmt.Println("  mock node:   " + nodeURL)
	fmt.Println("  metrics:     http://127.0.0.1:9090/metrics")
	fmt.Println("  status:      http://127.0.0.1:9090/api/status")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := exp.Start(ctx); err != nil {
		slog.Error("exporter error", "error", err)
		os.Exit(1)
	}
}
