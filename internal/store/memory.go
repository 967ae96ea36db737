package store

import (
	"sync"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Statuses are keyed by target identity. Targets passed to
// [NewMemoryStore] are listed first, in the given order, even before their
// first execution; any other identity is appended on its first update.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[target.ID]*TargetStatus
	order    []target.ID
}

// NewMemoryStore creates a [MemoryStore] seeded with the given targets.
func NewMemoryStore(targets ...target.Target) *MemoryStore {
	m := &MemoryStore{
		statuses: make(map[target.ID]*TargetStatus, len(targets)),
		order:    make([]target.ID, 0, len(targets)),
	}
	for _, t := range targets {
		if _, ok := m.statuses[t.ID()]; ok {
			continue
		}
		m.statuses[t.ID()] = &TargetStatus{ID: t.ID(), Kind: t.Kind(), Address: t.Address()}
		m.order = append(m.order, t.ID())
	}
	return m
}

// Update folds result into the target's status.
//
// A success records the value and resets the failure count. A failure keeps
// the previous value, records the error and increments the failure count.
func (m *MemoryStore) Update(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statuses[result.ID]
	if !ok {
		st = &TargetStatus{ID: result.ID, Kind: result.Kind, Address: result.Address}
		m.statuses[result.ID] = st
		m.order = append(m.order, result.ID)
	}

	st.CheckedAt = result.CheckedAt
	st.DurationMs = result.Duration.Milliseconds()

	if result.Err != nil {
		msg := result.Err.Error()
		st.LastError = &msg
		st.ConsecutiveFailures++
		return
	}

	checkedAt := result.CheckedAt
	st.Value = result.Value
	st.LastSuccess = &checkedAt
	st.LastError = nil
	st.ConsecutiveFailures = 0
}

// Get returns a copy of one target's status.
func (m *MemoryStore) Get(id target.ID) (TargetStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statuses[id]
	if !ok {
		return TargetStatus{}, false
	}
	return *st, true
}

// GetAll returns a snapshot of every status in target order.
func (m *MemoryStore) GetAll() []TargetStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]TargetStatus, 0, len(m.order))
	for _, id := range m.order {
		results = append(results, *m.statuses[id])
	}
	return results
}
