package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FindoraNetwork/findora-exporter/internal/collector"
	"github.com/FindoraNetwork/findora-exporter/internal/metric"
	"github.com/FindoraNetwork/findora-exporter/internal/scale"
	"github.com/FindoraNetwork/findora-exporter/target"
)

// Binding is everything a worker needs to execute one target.
//
// Bindings are built once and shared by pointer. Apart from the pending
// flag they never change.
type Binding struct {
	id        target.ID
	address   string
	kind      target.Kind
	options   target.Options
	frequency time.Duration
	exponent  uint

	collect collector.Func
	metric  *metric.Metric

	pending atomic.Bool
}

// Build creates one binding per target, in target order.
//
// Every target must have a metric in reg and a collector in table; a miss
// means reg was built from different targets and is reported as a
// configuration error.
func Build(targets []target.Target, reg *metric.Registry, table *collector.Table) ([]*Binding, error) {
	bindings := make([]*Binding, 0, len(targets))
	for i, t := range targets {
		if err := target.CheckOptions(t.Kind(), t.Options()); err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, t, err)
		}

		collect, err := table.Resolve(t.Kind())
		if err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, t, err)
		}

		m, err := reg.Lookup(t.ID())
		if err != nil {
			return nil, fmt.Errorf("%w: targets[%d] (%s): %v", target.ErrConfig, i, t, err)
		}

		var exponent uint
		if t.Kind().Scaled() {
			d, ok := t.Options().(target.Decimals)
			if !ok {
				return nil, fmt.Errorf("%w: targets[%d] (%s): options carry no decimals", target.ErrConfig, i, t)
			}
			exponent = scale.DecimalGap(d.TokenDecimals())
		}

		bindings = append(bindings, &Binding{
			id:        t.ID(),
			address:   t.Address(),
			kind:      t.Kind(),
			options:   t.Options(),
			frequency: t.Frequency(),
			exponent:  exponent,
			collect:   collect,
			metric:    m,
		})
	}
	return bindings, nil
}

// ID returns the target identity.
func (b *Binding) ID() target.ID { return b.id }

// Address returns the remote endpoint.
func (b *Binding) Address() string { return b.address }

// Kind returns the task kind.
func (b *Binding) Kind() target.Kind { return b.kind }

// Options returns the target's options, or nil.
func (b *Binding) Options() target.Options { return b.options }

// Frequency returns the target's own interval; zero means the scheduler
// default.
func (b *Binding) Frequency() time.Duration { return b.frequency }

// Exponent returns the decimal gap applied to scaled readings.
func (b *Binding) Exponent() uint { return b.exponent }

// Metric returns the gauge the binding writes.
func (b *Binding) Metric() *metric.Metric { return b.metric }

// String is used in log lines.
func (b *Binding) String() string {
	return fmt.Sprintf("%s@%s", b.kind, b.address)
}

// TryAcquire marks the binding as queued. It returns false when the
// binding is already queued or running.
func (b *Binding) TryAcquire() bool {
	return b.pending.CompareAndSwap(false, true)
}

// Release clears the queued mark once execution is over.
func (b *Binding) Release() {
	b.pending.Store(false)
}

// Pending reports whether the binding is queued or running.
func (b *Binding) Pending() bool {
	return b.pending.Load()
}

// Execute collects one reading and writes it into the metric.
//
// Scaled kinds convert the reading's amount with the binding's exponent;
// the others use the reading's value directly. On error the metric keeps
// its previous value.
func (b *Binding) Execute(ctx context.Context) (float64, error) {
	r, err := b.collect(ctx, b.address, b.options)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", b, err)
	}

	v := r.Value
	if b.kind.Scaled() {
		v = float64(scale.ToGauge(r.Amount, b.exponent))
	}

	b.metric.Set(v)
	return v, nil
}
