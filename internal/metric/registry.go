package metric

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// FrequencyLabel carries a target's own polling frequency. Targets that poll
// at the tick interval do not get it.
const FrequencyLabel = "frequency"

// ErrNotFound is returned by [Registry.Lookup] for an unknown identity.
var ErrNotFound = errors.New("metric not found")

// Snapshot is the point-in-time value of one exported series.
type Snapshot struct {
	Name   string            `json:"name"`
	Help   string            `json:"help"`
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

// Registry owns one [Metric] per target identity.
//
// Targets without a namespace share one prometheus registry and are told
// apart by constant labels (address plus the kind's option labels). Each
// namespaced target gets a fresh registry wrapped with its prefix and labels.
// A target with its own frequency is also labelled with it and registered
// alone, so targets differing only in frequency export distinct series.
//
// A Registry is immutable after [Build]; lookups and gathers are safe for
// concurrent use with gauge updates.
type Registry struct {
	shared    *prometheus.Registry
	gatherers prometheus.Gatherers
	metrics   map[target.ID]*Metric
	order     []target.ID
}

// Build creates and registers a gauge for every target.
//
// The build fails as a whole, with an error wrapping [target.ErrConfig], when
// two targets share an identity, when a namespace has an invalid prefix or
// label name, or when two targets would export the same series.
func Build(targets []target.Target) (*Registry, error) {
	r := &Registry{
		shared:  prometheus.NewRegistry(),
		metrics: make(map[target.ID]*Metric, len(targets)),
		order:   make([]target.ID, 0, len(targets)),
	}
	gatherers := prometheus.Gatherers{r.shared}

	for i, t := range targets {
		id := t.ID()
		if _, exists := r.metrics[id]; exists {
			return nil, fmt.Errorf("%w: targets[%d] (%s): duplicate target identity %s", target.ErrConfig, i, t, id)
		}

		desc, ok := descriptors[t.Kind()]
		if !ok {
			return nil, fmt.Errorf("%w: targets[%d] (%s): unknown task", target.ErrConfig, i, t)
		}

		var (
			reg    prometheus.Registerer = r.shared
			labels prometheus.Labels
		)
		switch ns := t.Namespace(); {
		case ns != nil:
			custom, wrapped, err := newNamespaced(ns, t.Frequency())
			if err != nil {
				return nil, fmt.Errorf("targets[%d] (%s): %w", i, t, err)
			}
			reg = wrapped
			gatherers = append(gatherers, custom)
		case t.Frequency() > 0:
			// the extra label changes the series' dimensions, which a
			// registry only accepts once per metric name
			custom := prometheus.NewRegistry()
			reg = custom
			gatherers = append(gatherers, custom)
			labels = sharedLabels(t)
			labels[FrequencyLabel] = t.Frequency().String()
		default:
			labels = sharedLabels(t)
		}

		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        desc.name,
			Help:        desc.help,
			ConstLabels: labels,
		})
		if err := reg.Register(gauge); err != nil {
			return nil, fmt.Errorf("%w: targets[%d] (%s): register metric: %v", target.ErrConfig, i, t, err)
		}

		r.metrics[id] = &Metric{id: id, kind: t.Kind(), gauge: gauge}
		r.order = append(r.order, id)
	}

	// registries are checked one by one on Register; a trial gather catches
	// series that collide across registries
	if _, err := gatherers.Gather(); err != nil {
		return nil, fmt.Errorf("%w: conflicting metric series: %v", target.ErrConfig, err)
	}
	r.gatherers = gatherers

	return r, nil
}

// newNamespaced creates an isolated registry and the registerer that applies
// the namespace's prefix and static labels, plus the frequency label when the
// target has its own frequency and the namespace does not define one.
func newNamespaced(ns *target.Namespace, frequency time.Duration) (*prometheus.Registry, prometheus.Registerer, error) {
	if err := target.ValidatePrefix(ns.Prefix); err != nil {
		return nil, nil, err
	}
	for _, name := range ns.SortedLabelNames() {
		if err := target.ValidateLabelName(name); err != nil {
			return nil, nil, err
		}
	}

	labels := prometheus.Labels{}
	for name, value := range ns.Labels {
		labels[name] = value
	}
	if _, ok := labels[FrequencyLabel]; !ok && frequency > 0 {
		labels[FrequencyLabel] = frequency.String()
	}

	custom := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(
		labels,
		prometheus.WrapRegistererWithPrefix(ns.Prefix+"_", custom),
	)
	return custom, wrapped, nil
}

// sharedLabels distinguishes targets that share the default registry.
func sharedLabels(t target.Target) prometheus.Labels {
	labels := prometheus.Labels{"address": t.Address()}

	switch o := t.Options().(type) {
	case target.BridgedBalanceOptions:
		labels["handler"] = o.HandlerAddress
		labels["token"] = o.TokenAddress
	case target.BridgedSupplyOptions:
		labels["token"] = o.TokenAddress
	case target.RelayerOptions:
		labels["bridge"] = o.BridgeAddress
	case target.NativeBalanceOptions:
		labels["account"] = o.NativeAddress
	case target.PriceOptions:
		labels["pair"] = o.CurrencyPair
	}

	return labels
}

// Lookup returns the metric bound to the given identity.
func (r *Registry) Lookup(id target.ID) (*Metric, error) {
	m, ok := r.metrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Len returns the number of metrics.
func (r *Registry) Len() int {
	return len(r.order)
}

// Metrics returns every metric in target order.
func (r *Registry) Metrics() []*Metric {
	out := make([]*Metric, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.metrics[id])
	}
	return out
}

// Gatherer returns a gatherer over the shared and every namespaced registry,
// suitable for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.gatherers
}

// Gather flattens every registry's current values into one list ordered by
// metric name, then by label values.
//
// Gather reads current gauge values without locking them; it may run
// concurrently with any number of updates. On a partial failure the
// snapshots that could be gathered are returned along with the error.
func (r *Registry) Gather() ([]Snapshot, error) {
	families, err := r.gatherers.Gather()

	var out []Snapshot
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, Snapshot{
				Name:   mf.GetName(),
				Help:   mf.GetHelp(),
				Labels: labels,
				Value:  m.GetGauge().GetValue(),
			})
		}
	}

	return out, err
}
