// Package scale converts on-chain fixed-point amounts into int64 gauge values.
//
// Balances are normalised to 18 decimal places, then divided by 10^12, so a
// gauge value of 1_000_000 represents one whole token. Arithmetic wraps
// modulo 2^256 instead of failing; realistic balances never get near that.
package scale

import (
	"strings"

	"github.com/holiman/uint256"
)

const (
	// NormalDecimals is the fixed-point precision every amount is normalised to.
	NormalDecimals = 18

	// DownscaleExponent is the power of ten removed after normalisation.
	DownscaleExponent = 12
)

var pow10 [NormalDecimals + 1]*uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i <= NormalDecimals; i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// DecimalGap returns how many powers of ten an amount with the given token
// decimals must be multiplied by to reach 18 decimals: max(0, 18-decimals).
//
// Negative decimals are a configuration error the caller must reject first;
// they are treated here as 0 decimals.
func DecimalGap(decimals int) uint {
	if decimals < 0 {
		decimals = 0
	}
	if decimals >= NormalDecimals {
		return 0
	}
	return uint(NormalDecimals - decimals)
}

// ToGauge computes (balance * 10^exponent) / 10^12 and truncates the result
// to its low 64 bits, interpreted as int64.
//
// The multiply wraps on overflow. ToGauge never panics: a nil or zero balance
// yields 0 and exponents above 18 are clamped to 18.
func ToGauge(balance *uint256.Int, exponent uint) int64 {
	if balance == nil || balance.IsZero() {
		return 0
	}
	if exponent > NormalDecimals {
		exponent = NormalDecimals
	}
	v := new(uint256.Int).Mul(balance, pow10[exponent])
	v.Div(v, pow10[DownscaleExponent])
	return int64(v.Uint64())
}

// ParseQuantity decodes a hex quantity as returned by EVM JSON-RPC, such as
// "0x1bc16d674ec80000" or a 32-byte zero-padded eth_call word. An empty
// "0x" decodes as zero.
func ParseQuantity(s string) (*uint256.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromHex("0x" + digits)
}
