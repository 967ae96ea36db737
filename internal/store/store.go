package store

import (
	"time"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// TargetStatus is the last known state of one target, as served by the
// status API.
type TargetStatus struct {
	// ID is the target identity.
	ID target.ID `json:"id"`

	// Kind is the task kind.
	Kind target.Kind `json:"task"`

	// Address is the polled endpoint.
	Address string `json:"address"`

	// Value is the last value written to the target's metric.
	Value float64 `json:"value"`

	// LastSuccess is when the metric was last updated. nil until the first
	// successful execution.
	LastSuccess *time.Time `json:"last_success"`

	// LastError is the error of the most recent execution, nil when it
	// succeeded.
	LastError *string `json:"last_error"`

	// CheckedAt is when the target was last executed.
	CheckedAt time.Time `json:"checked_at"`

	// ConsecutiveFailures counts failed executions since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// DurationMs is how long the last execution took, in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// Result is the outcome of one execution fed into the store.
type Result struct {
	ID        target.ID
	Kind      target.Kind
	Address   string
	Value     float64
	Err       error
	Duration  time.Duration
	CheckedAt time.Time
}

// Store keeps the latest status per target.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update folds a new result into the target's status.
	Update(result Result)

	// Get returns the status of one target.
	Get(id target.ID) (TargetStatus, bool)

	// GetAll returns every status in target order.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []TargetStatus
}
