// Package metric owns the gauges the exporter publishes.
//
// [Build] turns a list of targets into a [Registry] holding exactly one
// gauge per target identity. The registry never changes after Build; the
// scheduler only ever calls [Metric.Set].
package metric
