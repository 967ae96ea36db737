package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// descriptor is the name and help text of a kind's gauge.
type descriptor struct {
	name string
	help string
}

var descriptors = map[target.Kind]descriptor{
	target.ConsensusPower: {
		"consensus_power",
		"percentage of the current consensus network voting power",
	},
	target.NetworkFunctional: {
		"network_functional",
		"subtraction of seconds of the latest block time with the current time",
	},
	target.TotalCountOfValidators: {
		"total_count_of_validators",
		"the total number of validators from the consensus network",
	},
	target.TotalBalanceOfRelayers: {
		"total_balance_of_relayers",
		"the total balance of relayers from the specific bridge",
	},
	target.BridgedBalance: {
		"bridged_balance",
		"the token balance of reserving safe on source chain",
	},
	target.BridgedSupply: {
		"bridged_supply",
		"the token supply total minted on the destination chain",
	},
	target.NativeBalance: {
		"native_balance",
		"the native balance of reserving safe on source chain",
	},
	target.GetPrice: {
		"get_price",
		"the close price of the related currency pair, multiplied by 10^6",
	},
}

// Metric is the gauge bound to one target.
//
// A Metric is created once by [Build] and lives as long as its [Registry].
// Set and Value are safe for concurrent use; the gauge stores its value
// atomically.
type Metric struct {
	id    target.ID
	kind  target.Kind
	gauge prometheus.Gauge
}

// ID returns the identity of the target the metric belongs to.
func (m *Metric) ID() target.ID {
	return m.id
}

// Kind returns the target's kind.
func (m *Metric) Kind() target.Kind {
	return m.kind
}

// Set replaces the gauge value. Integer kinds are expected to pass whole
// numbers; the gauge itself does not round.
//
// Prometheus gauges are float64, so scaled integer values above 2^53 keep
// only 53 significant bits. With six decimal places per token that is about
// nine billion whole tokens.
func (m *Metric) Set(v float64) {
	m.gauge.Set(v)
}

// Value reads the current gauge value.
func (m *Metric) Value() float64 {
	var pb dto.Metric
	if err := m.gauge.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}
