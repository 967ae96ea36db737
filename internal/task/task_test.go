package task

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FindoraNetwork/findora-exporter/internal/collector"
	"github.com/FindoraNetwork/findora-exporter/internal/metric"
	"github.com/FindoraNetwork/findora-exporter/target"
)

const token = "0x0000000000000000000000000000000000000001"

func fixed(r collector.Reading, err error) collector.Func {
	return func(context.Context, string, target.Options) (collector.Reading, error) {
		return r, err
	}
}

func build(t *testing.T, table *collector.Table, targets ...target.Target) []*Binding {
	t.Helper()
	reg, err := metric.Build(targets)
	require.NoError(t, err)
	bindings, err := Build(targets, reg, table)
	require.NoError(t, err)
	return bindings
}

func supplyTarget(t *testing.T, decimals int) target.Target {
	t.Helper()
	tg, err := target.New("http://evm:8545", target.BridgedSupply,
		target.WithOptions(target.BridgedSupplyOptions{TokenAddress: token, Decimals: decimals}))
	require.NoError(t, err)
	return tg
}

func TestBuild(t *testing.T) {
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	b := supplyTarget(t, 6)

	table := collector.TableOf(map[target.Kind]collector.Func{
		target.ConsensusPower: fixed(collector.Reading{}, nil),
		target.BridgedSupply:  fixed(collector.Reading{}, nil),
	})
	bindings := build(t, table, a, b)

	require.Len(t, bindings, 2)
	assert.Equal(t, a.ID(), bindings[0].ID())
	assert.Equal(t, target.ConsensusPower, bindings[0].Kind())
	assert.Zero(t, bindings[0].Exponent())
	assert.Equal(t, b.ID(), bindings[1].ID())
	assert.Equal(t, uint(12), bindings[1].Exponent())
	assert.Equal(t, "http://evm:8545", bindings[1].Address())
	assert.Equal(t, b.ID(), bindings[1].Metric().ID())
}

func TestBuild_MissingCollector(t *testing.T) {
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	reg, err := metric.Build([]target.Target{a})
	require.NoError(t, err)

	_, err = Build([]target.Target{a}, reg, collector.TableOf(nil))
	assert.ErrorIs(t, err, target.ErrConfig)
}

func TestBuild_MetricFromOtherRegistry(t *testing.T) {
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	reg, err := metric.Build(nil)
	require.NoError(t, err)

	table := collector.TableOf(map[target.Kind]collector.Func{target.ConsensusPower: fixed(collector.Reading{}, nil)})
	_, err = Build([]target.Target{a}, reg, table)
	assert.ErrorIs(t, err, target.ErrConfig)
}

func TestExecute_Unscaled(t *testing.T) {
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	table := collector.TableOf(map[target.Kind]collector.Func{
		target.ConsensusPower: fixed(collector.Reading{Value: 66.5}, nil),
	})
	b := build(t, table, a)[0]

	v, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 66.5, v)
	assert.Equal(t, 66.5, b.Metric().Value())
}

func TestExecute_Scaled(t *testing.T) {
	tests := []struct {
		name     string
		decimals int
		amount   uint64
		want     float64
	}{
		{"18 decimals", 18, 9989580120000000000, 9989580},
		{"9 decimals", 9, 538800000000, 538800000},
		{"6 decimals", 6, 1_000_000, 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := collector.TableOf(map[target.Kind]collector.Func{
				target.BridgedSupply: fixed(collector.Reading{Amount: uint256.NewInt(tt.amount)}, nil),
			})
			b := build(t, table, supplyTarget(t, tt.decimals))[0]

			v, err := b.Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.want, b.Metric().Value())
		})
	}
}

func TestExecute_ErrorLeavesMetric(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	table := collector.TableOf(map[target.Kind]collector.Func{
		target.ConsensusPower: func(context.Context, string, target.Options) (collector.Reading, error) {
			calls++
			if calls == 1 {
				return collector.Reading{Value: 12}, nil
			}
			return collector.Reading{Value: 99}, boom
		},
	})
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	b := build(t, table, a)[0]

	_, err = b.Execute(context.Background())
	require.NoError(t, err)

	_, err = b.Execute(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "consensus_power@http://node:26657")
	assert.Equal(t, 12.0, b.Metric().Value())
}

func TestExecute_PassesAddressAndOptions(t *testing.T) {
	var gotAddr string
	var gotOpts target.Options
	table := collector.TableOf(map[target.Kind]collector.Func{
		target.BridgedSupply: func(_ context.Context, addr string, opts target.Options) (collector.Reading, error) {
			gotAddr, gotOpts = addr, opts
			return collector.Reading{}, nil
		},
	})
	tg := supplyTarget(t, 18)
	b := build(t, table, tg)[0]

	_, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tg.Address(), gotAddr)
	assert.Equal(t, tg.Options(), gotOpts)
}

func TestPendingGuard(t *testing.T) {
	a, err := target.New("http://node:26657", target.ConsensusPower)
	require.NoError(t, err)
	table := collector.TableOf(map[target.Kind]collector.Func{target.ConsensusPower: fixed(collector.Reading{}, nil)})
	b := build(t, table, a)[0]

	assert.False(t, b.Pending())
	assert.True(t, b.TryAcquire())
	assert.True(t, b.Pending())
	assert.False(t, b.TryAcquire())

	b.Release()
	assert.False(t, b.Pending())
	assert.True(t, b.TryAcquire())
}
