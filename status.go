package exporter

import (
	"time"

	"github.com/FindoraNetwork/findora-exporter/internal/collector"
	"github.com/FindoraNetwork/findora-exporter/internal/metric"
	"github.com/FindoraNetwork/findora-exporter/internal/store"
	"github.com/FindoraNetwork/findora-exporter/target"
)

// Reading is what a collector returns: a gauge value, or for balance and
// supply kinds, the raw on-chain amount to be scaled by the target's decimals.
type Reading = collector.Reading

// CollectFunc collects one [Reading] for the node at address. See
// [WithCollector].
type CollectFunc = collector.Func

// Snapshot is the current value of one exported series.
type Snapshot = metric.Snapshot

// TargetStatus is the last known state of one target.
type TargetStatus = store.TargetStatus

// Result holds the outcome of executing a single target once.
//
// Result is passed to callbacks registered with [WithStatusCallback].
type Result struct {
	// ID is the target identity.
	ID target.ID

	// Kind is the target's task kind.
	Kind target.Kind

	// Address is the polled endpoint.
	Address string

	// Value is the value written to the target's gauge. Zero when Err is set;
	// the gauge keeps its previous value in that case.
	Value float64

	// Err is non-nil if the execution failed.
	Err error

	// Duration is how long the execution took, including the remote call.
	Duration time.Duration

	// CheckedAt is when the execution finished.
	CheckedAt time.Time
}

// OK reports whether the execution updated the gauge.
func (r Result) OK() bool {
	return r.Err == nil
}
