package collector

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// Tendermint RPC paths, relative to the target address.
const (
	pathConsensusState = "/dump_consensus_state"
	pathStatus         = "/status"
	pathValidators     = "/validators"
)

// consensusPower reports the share of voting power in the last commit as a
// percentage. The node renders the bit array as "BA{n:xx_x} 40/60 = 0.67";
// the ratio after the last '=' is used.
func (c *collectors) consensusPower(ctx context.Context, address string, _ target.Options) (Reading, error) {
	res, err := c.getJSON(ctx, address+pathConsensusState)
	if err != nil {
		return Reading{}, err
	}

	bits, err := stringField(res, "result.round_state.last_commit.votes_bit_array")
	if err != nil {
		return Reading{}, err
	}
	ratio, err := parseVoteRatio(bits)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: ratio * 100}, nil
}

func parseVoteRatio(bits string) (float64, error) {
	pos := strings.LastIndexByte(bits, '=')
	if pos < 0 {
		return 0, fmt.Errorf("%w: votes_bit_array %q has no ratio", ErrParse, bits)
	}
	raw := strings.TrimSpace(strings.TrimRight(bits[pos+1:], "} "))
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: votes_bit_array ratio %q: %v", ErrParse, raw, err)
	}
	return ratio, nil
}

// networkFunctional reports how many whole seconds the latest block time is
// away from now, in either direction.
func (c *collectors) networkFunctional(ctx context.Context, address string, _ target.Options) (Reading, error) {
	res, err := c.getJSON(ctx, address+pathStatus)
	if err != nil {
		return Reading{}, err
	}

	raw, err := stringField(res, "result.sync_info.latest_block_time")
	if err != nil {
		return Reading{}, err
	}
	latest, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: latest_block_time %q: %v", ErrParse, raw, err)
	}

	lag := math.Abs(float64(c.now().Unix() - latest.Unix()))
	return Reading{Value: lag}, nil
}

// totalCountOfValidators reports result.total from the validators endpoint.
func (c *collectors) totalCountOfValidators(ctx context.Context, address string, _ target.Options) (Reading, error) {
	res, err := c.getJSON(ctx, address+pathValidators)
	if err != nil {
		return Reading{}, err
	}

	total := res.Get("result.total")
	switch total.Type {
	case gjson.String:
		n, err := strconv.ParseInt(total.Str, 10, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: validators total %q: %v", ErrParse, total.Str, err)
		}
		return Reading{Value: float64(n)}, nil
	case gjson.Number:
		return Reading{Value: float64(total.Int())}, nil
	default:
		return Reading{}, fmt.Errorf("%w: result.total missing", ErrProtocol)
	}
}

// getJSON fetches url and checks the body is JSON.
func (c *collectors) getJSON(ctx context.Context, url string) (gjson.Result, error) {
	body, err := c.client.Get(ctx, url)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: response from %s is not valid JSON", ErrProtocol, url)
	}
	return gjson.ParseBytes(body), nil
}

// stringField returns the string at path.
func stringField(res gjson.Result, path string) (string, error) {
	v := res.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return "", fmt.Errorf("%w: %s missing", ErrProtocol, path)
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: %s is not a string", ErrProtocol, path)
	}
	return v.Str, nil
}
