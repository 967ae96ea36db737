// Package poller runs task bindings on a schedule.
//
// The main components are:
//
//   - [Scheduler]: a pusher goroutine plus a fixed pool of workers
//   - [Outcome]: the result of executing one binding once
//   - [Metrics]: the scheduler's own prometheus counters
//
// Remote calls themselves live in the collector package; the scheduler only
// decides when a binding runs and isolates failures and panics.
package poller
