// Package task binds targets to their collector and metric.
//
// A [Binding] is the unit of work the scheduler queues: it knows how to
// collect one reading, scale it and write it into its gauge.
package task
