// Standalone mock node for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mocknode
//
// Then in another terminal:
//
//	go run ./cmd/findora-exporter serve -c example/exporter.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/holiman/uint256"

	"github.com/FindoraNetwork/findora-exporter/internal/mocknode"
)

const (
	token   = "0x1111111111111111111111111111111111111111"
	handler = "0x2222222222222222222222222222222222222222"
	bridge  = "0x3333333333333333333333333333333333333333"
)

var relayers = []string{
	"0x4444444444444444444444444444444444444444",
	"0x5555555555555555555555555555555555555555",
}

func main() {
	fmt.Println("Mock node starting on :9999")
	fmt.Println("Block lag and validator count drift every 20-60 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	node := mocknode.New()
	node.SetTokenBalance(token, handler, uint256.NewInt(538800000000))
	node.SetTokenSupply(token, uint256.NewInt(1_250_000_000_000))
	node.SetRelayers(relayers...)
	for i, r := range relayers {
		// 1.5 and 3 native coins at 18 decimals
		amount := new(uint256.Int).Mul(uint256.NewInt(uint64(i+1)*1_500_000_000), uint256.NewInt(1_000_000_000))
		node.SetNative(r, amount)
	}

	go drift(node)

	if err := http.ListenAndServe(":9999", node.Handler()); err != nil {
		slog.Error("mock node error", "error", err)
		os.Exit(1)
	}
}

// drift changes the node's health every 20-60 seconds.
func drift(node *mocknode.Node) {
	for {
		time.Sleep(time.Duration(20+rand.Intn(41)) * time.Second)

		lag := time.Duration(rand.Intn(30)) * time.Second
		validators := 3 + rand.Intn(3)
		node.SetBlockLag(lag)
		node.SetValidators(validators)
		slog.Info("node changed", "block_lag", lag.String(), "validators", validators)
	}
}
