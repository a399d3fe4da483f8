package hdscan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tdex-network/hdscan/pkg/chain"
)

var (
	scanBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hdscan_scan_batches_total",
		Help: "Number of address batches looked up while scanning for a gap.",
	}, []string{"chain", "network"})

	lookupFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hdscan_lookup_failures_total",
		Help: "Number of failed utxo lookups.",
	}, []string{"chain", "network"})

	scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hdscan_scan_duration_seconds",
		Help:    "Duration of complete gap scans.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"chain", "network"})

	currentIndex = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hdscan_current_index",
		Help: "Current index of the address spaces.",
	}, []string{"manager", "chain", "network"})
)

func init() {
	prometheus.MustRegister(scanBatches, lookupFailures, scanDuration, currentIndex)
}

func chainLabels(c chain.Chain) prometheus.Labels {
	return prometheus.Labels{
		"chain":   c.Kind().String(),
		"network": c.Network().String(),
	}
}
