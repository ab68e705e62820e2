// Package prometheus renders tsauth metrics in the Prometheus text
// exposition format.
//
// Counters are named tsauth_*_total and the single histogram is
// tsauth_authenticate_latency_seconds. The exporter never registers with a
// global registry; callers mount [PrometheusExporter.Handler] themselves.
package prometheus
