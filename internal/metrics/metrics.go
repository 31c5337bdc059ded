// Package metrics exposes extraction results as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/types"
)

// Namespace prefixes every metric name.
const Namespace = "tika"

// Observer implements driver.Observer and records one sample per finished
// node. It is safe for concurrent use.
type Observer struct {
	nodes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	warnings *prometheus.CounterVec
	depth    prometheus.Histogram
}

var _ driver.Observer = (*Observer)(nil)

// New creates the collectors and registers them with reg. Registering twice
// with the same registerer panics, as with any promauto collector.
func New(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		nodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "nodes_total",
				Help:      "Extracted nodes by format and final state",
			},
			[]string{"format", "state"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "node_duration_seconds",
				Help:      "Time spent on a node including its embedded objects",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"extractor"},
		),
		warnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "warnings_total",
				Help:      "Recoverable conditions recorded on nodes",
			},
			[]string{"condition"},
		),
		depth: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "node_depth",
				Help:      "Embedding depth of extracted nodes",
				Buckets:   prometheus.LinearBuckets(0, 1, 8),
			},
		),
	}
}

// ObserveNode implements driver.Observer.
func (o *Observer) ObserveNode(n *driver.Node, elapsed time.Duration) {
	format := string(n.Format.Base())
	if format == "" {
		format = "unknown"
	}
	o.nodes.WithLabelValues(format, n.State.String()).Inc()

	extractor := "none"
	if n.Metadata != nil {
		if vs := n.Metadata.Values(types.KeyParsedBy); len(vs) > 0 {
			extractor = vs[len(vs)-1]
		}
	}
	o.duration.WithLabelValues(extractor).Observe(elapsed.Seconds())
	o.depth.Observe(float64(n.Depth()))

	for _, w := range n.Warnings() {
		o.warnings.WithLabelValues(w.Condition.String()).Inc()
	}
}
