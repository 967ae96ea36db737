package config

import (
	"fmt"
	"sort"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// BuildTargets converts parsed configuration into targets.
//
// It processes both direct targets and groups, returning a combined slice in
// configuration order. Group addresses and tasks are expanded via cartesian
// product. Two entries resolving to the same identity are rejected.
func BuildTargets(cfg *Config) ([]target.Target, error) {
	var targets []target.Target
	seen := make(map[target.ID]string)

	add := func(where string, t target.Target) error {
		if prev, dup := seen[t.ID()]; dup {
			return fmt.Errorf("%w: %s (%s): duplicate of %s", target.ErrConfig, where, t, prev)
		}
		seen[t.ID()] = where
		targets = append(targets, t)
		return nil
	}

	// convert direct targets
	for i, tc := range cfg.Targets {
		where := fmt.Sprintf("targets[%d]", i)
		t, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", where, tc.Task, err)
		}
		if err := add(where, t); err != nil {
			return nil, err
		}
	}

	// convert groups (cartesian product expansion)
	for i, gc := range cfg.Groups {
		groupTargets, err := buildGroupTargets(gc)
		if err != nil {
			return nil, fmt.Errorf("groups[%d]: %w", i, err)
		}
		for j, t := range groupTargets {
			if err := add(fmt.Sprintf("groups[%d][%d]", i, j), t); err != nil {
				return nil, err
			}
		}
	}

	return targets, nil
}

// buildTarget converts a single TargetConfig to a target.
func buildTarget(tc TargetConfig) (target.Target, error) {
	kind, err := target.ParseKind(tc.Task)
	if err != nil {
		return target.Target{}, err
	}

	var opts []target.Option

	if tc.Frequency != 0 {
		opts = append(opts, target.WithFrequency(tc.Frequency.Duration()))
	}

	if tc.Options != nil {
		opts = append(opts, target.WithOptions(buildOptions(kind, tc.Options)))
	}

	if tc.Registry != nil {
		opts = append(opts, target.WithNamespace(tc.Registry.Prefix, mapToKeyValuePairs(tc.Registry.Labels)...))
	}

	return target.New(tc.Address, kind, opts...)
}

// buildOptions picks the options variant for kind. Nil means the kind takes none.
func buildOptions(kind target.Kind, oc *OptionsConfig) target.Options {
	decimals := 0
	if oc.Decimals != nil {
		decimals = *oc.Decimals
	}

	switch kind {
	case target.BridgedBalance:
		return target.BridgedBalanceOptions{
			HandlerAddress: oc.HandlerAddress,
			TokenAddress:   oc.TokenAddress,
			Decimals:       decimals,
		}
	case target.BridgedSupply:
		return target.BridgedSupplyOptions{TokenAddress: oc.TokenAddress, Decimals: decimals}
	case target.TotalBalanceOfRelayers:
		return target.RelayerOptions{BridgeAddress: oc.BridgeAddress, Decimals: decimals}
	case target.NativeBalance:
		return target.NativeBalanceOptions{NativeAddress: oc.NativeAddress, Decimals: decimals}
	case target.GetPrice:
		return target.PriceOptions{CurrencyPair: oc.CurrencyPair}
	default:
		return nil
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildGroupTargets expands a GroupConfig into one target per address and task.
func buildGroupTargets(gc GroupConfig) ([]target.Target, error) {
	combinations := cartesianProduct(map[string][]string{
		"address": gc.Addresses,
		"task":    gc.Tasks,
	})

	targets := make([]target.Target, 0, len(combinations))
	for _, combo := range combinations {
		tc := TargetConfig{
			Address:   combo["address"],
			Task:      combo["task"],
			Frequency: gc.Frequency,
			Registry:  gc.Registry,
		}

		t, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", tc.Task, tc.Address, err)
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// cartesianProduct generates all combinations of dimension values.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	// sort dimension keys for deterministic ordering
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// start with single empty combination
	result := []map[string]string{{}}

	for _, key := range keys {
		values := dimensions[key]
		var newResult []map[string]string

		for _, combo := range result {
			for _, val := range values {
				// copy existing combo and add new dimension
				newCombo := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					newCombo[k] = v
				}
				newCombo[key] = val
				newResult = append(newResult, newCombo)
			}
		}
		result = newResult
	}

	return result
}
