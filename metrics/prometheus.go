// Package metrics exports rnaget service metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/rnaget"
	"github.com/hupe1980/rnaget/model"
)

const namespace = "rnaget"

// PrometheusCollector implements rnaget.MetricsCollector with Prometheus
// counters and histograms.
type PrometheusCollector struct {
	queries       *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
	encodeLatency *prometheus.HistogramVec
	encodeRows    *prometheus.CounterVec
	encodeBytes   *prometheus.CounterVec
	tickets       *prometheus.CounterVec
	ticketBytes   prometheus.Histogram
	downloads     *prometheus.CounterVec
	swept         prometheus.Counter
	sweepErrors   prometheus.Counter
}

var _ rnaget.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Query requests by format and outcome (hit, miss, error).",
		}, []string{"format", "outcome"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency including artifact builds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		encodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Artifact build latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"format"}),
		encodeRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoded_rows_total",
			Help:      "Rows written into artifacts.",
		}, []string{"format"}),
		encodeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoded_bytes_total",
			Help:      "Uncompressed artifact bytes written.",
		}, []string{"format"}),
		tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_issued_total",
			Help:      "Tickets issued for freshly built artifacts.",
		}, []string{"format"}),
		ticketBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ticket_payload_bytes",
			Help:      "Stored payload size of issued tickets.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download requests by outcome (ok, error).",
		}, []string{"outcome"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_swept_total",
			Help:      "Expired tickets removed by sweeps.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweeps that failed to remove every expired payload.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.queries, c.queryLatency, c.encodeLatency, c.encodeRows, c.encodeBytes,
		c.tickets, c.ticketBytes, c.downloads, c.swept, c.sweepErrors,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordQuery implements rnaget.MetricsCollector.
func (c *PrometheusCollector) RecordQuery(format model.Format, cached bool, d time.Duration, err error) {
	o := "miss"
	switch {
	case err != nil:
		o = "error"
	case cached:
		o = "hit"
	}
	c.queries.WithLabelValues(string(format), o).Inc()
	c.queryLatency.WithLabelValues(string(format)).Observe(d.Seconds())
}

// RecordEncode implements rnaget.MetricsCollector.
func (c *PrometheusCollector) RecordEncode(format model.Format, rows int, bytes int64, d time.Duration, _ error) {
	c.encodeLatency.WithLabelValues(string(format)).Observe(d.Seconds())
	c.encodeRows.WithLabelValues(string(format)).Add(float64(rows))
	c.encodeBytes.WithLabelValues(string(format)).Add(float64(bytes))
}

// RecordTicket implements rnaget.MetricsCollector.
func (c *PrometheusCollector) RecordTicket(format model.Format, bytes int64) {
	c.tickets.WithLabelValues(string(format)).Inc()
	c.ticketBytes.Observe(float64(bytes))
}

// RecordDownload implements rnaget.MetricsCollector.
func (c *PrometheusCollector) RecordDownload(_ time.Duration, err error) {
	c.downloads.WithLabelValues(outcome(err)).Inc()
}

// RecordSweep implements rnaget.MetricsCollector.
func (c *PrometheusCollector) RecordSweep(removed int, err error) {
	c.swept.Add(float64(removed))
	if err != nil {
		c.sweepErrors.Inc()
	}
}
