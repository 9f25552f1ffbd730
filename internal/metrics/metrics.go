// Package metrics exposes Prometheus metrics for polling cycles.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fermentbridge"

// Collector records per-device cycle outcomes and the last values sent.
type Collector struct {
	cycles     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	fieldValue *prometheus.GaugeVec
	lastSubmit *prometheus.GaugeVec
}

// NewCollector creates a [Collector] and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Device cycles by outcome (submitted, ignored, failed).",
		}, []string{"device", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time taken to fetch and submit one device.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),
		fieldValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_value",
			Help:      "Last value prepared for submission, per logical field.",
		}, []string{"device", "field"}),
		lastSubmit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_submit_timestamp_seconds",
			Help:      "Unix time of the last point accepted by the logging API.",
		}, []string{"device"}),
	}

	for _, col := range []prometheus.Collector{c.cycles, c.duration, c.fieldValue, c.lastSubmit} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// Observe records one device cycle.
//
// Only numeric payload values are exported as field gauges; name and unit
// labels are skipped.
func (c *Collector) Observe(device, outcome string, duration time.Duration, payload map[string]any, at time.Time) {
	c.cycles.WithLabelValues(device, outcome).Inc()
	c.duration.WithLabelValues(device).Observe(duration.Seconds())

	for field, v := range payload {
		if f, ok := v.(float64); ok {
			c.fieldValue.WithLabelValues(device, field).Set(f)
		}
	}

	if outcome == "submitted" {
		c.lastSubmit.WithLabelValues(device).Set(float64(at.Unix()))
	}
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
