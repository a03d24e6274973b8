/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import "github.com/prometheus/client_golang/prometheus"

const metricsLabelReason = "reason"

// Reject reasons that are used as label values in metrics.
const (
	MetricsRejectReasonRateLimit        = "rate_limit"
	MetricsRejectReasonMissingClientKey = "missing_client_key"
)

// MetricsCollector represents collector of metrics for admission control rejects.
type MetricsCollector struct {
	RejectsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a new instance of MetricsCollector.
func NewMetricsCollector(namespace string) *MetricsCollector {
	rejectsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_rejects_total",
		Help:      "Number of rejected requests due to admission control.",
	}, []string{metricsLabelReason})
	return &MetricsCollector{RejectsTotal: rejectsTotal}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (mc *MetricsCollector) MustCurryWith(labels prometheus.Labels) *MetricsCollector {
	return &MetricsCollector{RejectsTotal: mc.RejectsTotal.MustCurryWith(labels)}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *MetricsCollector) MustRegister() {
	prometheus.MustRegister(mc.RejectsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *MetricsCollector) Unregister() {
	prometheus.Unregister(mc.RejectsTotal)
}

func (mc *MetricsCollector) incRejects(reason string) {
	if mc == nil {
		return
	}
	mc.RejectsTotal.With(prometheus.Labels{metricsLabelReason: reason}).Inc()
}
