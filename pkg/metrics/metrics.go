package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the node's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Operations  *prometheus.CounterVec
	FlashLoans  *prometheus.CounterVec
	BlockHeight prometheus.Gauge
	MempoolSize prometheus.Gauge
	BlockTxs    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashdex_operations_total",
			Help: "Executed transactions by operation and result code.",
		}, []string{"op", "code"}),
		FlashLoans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashdex_flash_loans_total",
			Help: "Flash loans by outcome (repaid or reverted).",
		}, []string{"result"}),
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashdex_block_height",
			Help: "Height of the last committed block.",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashdex_mempool_size",
			Help: "Transactions waiting for inclusion.",
		}),
		BlockTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flashdex_block_txs",
			Help:    "Transactions per committed block.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.registry.MustRegister(m.Operations, m.FlashLoans, m.BlockHeight, m.MempoolSize, m.BlockTxs)
	return m
}

// ObserveTx records one executed transaction.
func (m *Metrics) ObserveTx(op, code string) {
	m.Operations.WithLabelValues(op, code).Inc()
	if op == "flash_loan" {
		result := "repaid"
		if code != "ok" {
			result = "reverted"
		}
		m.FlashLoans.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveBlock(height uint64, txs int) {
	m.BlockHeight.Set(float64(height))
	m.BlockTxs.Observe(float64(txs))
}

func (m *Metrics) SetMempoolSize(n int) { m.MempoolSize.Set(float64(n)) }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
