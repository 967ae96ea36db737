package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// Reading is the raw result of one collection.
//
// Scaled kinds report Amount, the on-chain fixed-point quantity; the task
// layer converts it with the target's decimals. Every other kind reports
// Value, the gauge value as is.
type Reading struct {
	Value  float64
	Amount *uint256.Int
}

// Func collects one reading for the node at address.
//
// opts is the target's options, nil for kinds that take none. A Func must
// honour ctx and return an error wrapping [ErrTransport], [ErrProtocol],
// [ErrParse] or [target.ErrConfig].
type Func func(ctx context.Context, address string, opts target.Options) (Reading, error)

// Table maps every kind to its collector. A Table is immutable; [Table.With]
// returns a modified copy.
type Table struct {
	funcs map[target.Kind]Func
}

// NewTable binds every known kind to its implementation over client.
func NewTable(client *Client) *Table {
	c := &collectors{client: client, now: time.Now}
	return &Table{funcs: map[target.Kind]Func{
		target.ConsensusPower:         c.consensusPower,
		target.NetworkFunctional:      c.networkFunctional,
		target.TotalCountOfValidators: c.totalCountOfValidators,
		target.TotalBalanceOfRelayers: c.totalBalanceOfRelayers,
		target.BridgedBalance:         c.bridgedBalance,
		target.BridgedSupply:          c.bridgedSupply,
		target.NativeBalance:          c.nativeBalance,
		target.GetPrice:               c.price,
	}}
}

// TableOf builds a table from explicit functions. Kinds left out fail to
// resolve.
func TableOf(funcs map[target.Kind]Func) *Table {
	t := &Table{funcs: make(map[target.Kind]Func, len(funcs))}
	for k, fn := range funcs {
		t.funcs[k] = fn
	}
	return t
}

// With returns a copy of the table with kind bound to fn.
func (t *Table) With(kind target.Kind, fn Func) *Table {
	cp := TableOf(t.funcs)
	cp.funcs[kind] = fn
	return cp
}

// Resolve returns the collector for kind.
func (t *Table) Resolve(kind target.Kind) (Func, error) {
	fn, ok := t.funcs[kind]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: no collector for task %q", target.ErrConfig, kind)
	}
	return fn, nil
}

// collectors holds what the built-in collectors share.
type collectors struct {
	client *Client
	now    func() time.Time
}

// optionsAs asserts the options variant a collector needs.
func optionsAs[T target.Options](kind target.Kind, opts target.Options) (T, error) {
	o, ok := opts.(T)
	if !ok {
		var zero T
		if opts == nil {
			return zero, fmt.Errorf("%w: task %s requires options", target.ErrConfig, kind)
		}
		return zero, fmt.Errorf("%w: task %s got options for %s", target.ErrConfig, kind, opts.Kind())
	}
	return o, nil
}
