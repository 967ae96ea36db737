// Package store keeps the latest execution status of every target.
//
// The main components are:
//
//   - [Store]: Interface defining update and read operations
//   - [MemoryStore]: In-memory implementation of Store
//   - [TargetStatus]: Storage representation of a target's status
//
// The store is fed by the scheduler's outcome observer and read by the
// status API. It is designed for concurrent access.
package store
