package node

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercatoria.dev/core/queries"
)

// Metrics exports the running chain's top-level state as Prometheus
// gauges/counters, grounded on node/chainstate.go's summary-struct pattern
// (here backed by queries.TopStats instead of a UTXO connect-block
// summary).
type Metrics struct {
	Height      prometheus.Gauge
	Stake       prometheus.Gauge
	Fee         prometheus.Gauge
	Gas         prometheus.Gauge
	NewNodes    prometheus.Gauge
	Prize       prometheus.Gauge
	BlocksTotal prometheus.Counter
}

// NewMetrics builds and registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "main_block_height",
			Help:      "Version of the current main block tip.",
		}),
		Stake: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "quorum_tree_stake",
			Help:      "Total stake aggregated at the quorum tree root (low 64 bits).",
		}),
		Fee: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "quorum_tree_fee",
			Help:      "Iteration-scoped fee aggregated at the quorum tree root (low 64 bits).",
		}),
		Gas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "quorum_tree_gas",
			Help:      "Iteration-scoped gas aggregated at the quorum tree root.",
		}),
		NewNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "quorum_tree_new_nodes",
			Help:      "Iteration-scoped new_nodes aggregated at the quorum tree root.",
		}),
		Prize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "quorum_tree_prize",
			Help:      "Iteration-scoped prize aggregated at the quorum tree root (low 64 bits).",
		}),
		BlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "main_blocks_applied_total",
			Help:      "Count of main blocks this node has applied.",
		}),
	}
	reg.MustRegister(m.Height, m.Stake, m.Fee, m.Gas, m.NewNodes, m.Prize, m.BlocksTotal)
	return m
}

// Observe refreshes the gauges from the driver's current tip.
func (m *Metrics) Observe(d *ChainDriver) error {
	_, head, ok := d.Head()
	if !ok {
		return nil
	}
	m.Height.Set(float64(head.Version))

	stats, err := queries.TopStats(d.Store(), head)
	if err != nil {
		return err
	}
	m.Stake.Set(float64(stats.Stake.Lo))
	m.Fee.Set(float64(stats.Fee.Lo))
	m.Gas.Set(float64(stats.Gas))
	m.NewNodes.Set(float64(stats.NewNodes))
	m.Prize.Set(float64(stats.Prize.Lo))
	return nil
}

// RecordApplied increments the applied-block counter; call once per
// successful ChainDriver.ApplyMainBlock.
func (m *Metrics) RecordApplied() {
	m.BlocksTotal.Inc()
}
