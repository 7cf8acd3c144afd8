// Package metrics exposes build request metrics through Prometheus.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements ports.MetricsRecorder using Prometheus metrics.
type PrometheusRecorder struct {
	builds       *prom.CounterVec
	duration     *prom.HistogramVec
	stagedBytes  *prom.CounterVec
	activeBuilds *prom.GaugeVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &PrometheusRecorder{
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ocomp",
			Name:      "builds_total",
			Help:      "Build requests by target and outcome",
		}, []string{"target", "outcome"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ocomp",
			Name:      "build_duration_seconds",
			Help:      "End to end build request duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"target"}),
		stagedBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ocomp",
			Name:      "staged_bytes_total",
			Help:      "Bytes written into workspaces from uploads",
		}, []string{"target"}),
		activeBuilds: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "ocomp",
			Name:      "active_builds",
			Help:      "Build requests currently in flight",
		}, []string{"target"}),
	}
	reg.MustRegister(r.builds, r.duration, r.stagedBytes, r.activeBuilds)
	return r
}

func (r *PrometheusRecorder) ObserveBuild(target, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.builds.WithLabelValues(target, outcome).Inc()
	r.duration.WithLabelValues(target).Observe(d.Seconds())
}

func (r *PrometheusRecorder) AddStagedBytes(target string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.stagedBytes.WithLabelValues(target).Add(float64(n))
}

func (r *PrometheusRecorder) BuildStarted(target string) {
	if r == nil {
		return
	}
	r.activeBuilds.WithLabelValues(target).Inc()
}

func (r *PrometheusRecorder) BuildFinished(target string) {
	if r == nil {
		return
	}
	r.activeBuilds.WithLabelValues(target).Dec()
}
