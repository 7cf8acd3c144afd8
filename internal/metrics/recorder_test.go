package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_CountsBuilds(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveBuild("rust", "success", 2*time.Second)
	r.ObserveBuild("rust", "non_zero_exit", time.Second)
	r.ObserveBuild("go", "success", time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(r.builds.WithLabelValues("rust", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.builds.WithLabelValues("rust", "non_zero_exit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.builds.WithLabelValues("go", "success")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPrometheusRecorder_ActiveBuildsAndBytes(t *testing.T) {
	r := NewPrometheusRecorder(nil)

	r.BuildStarted("rust")
	r.BuildStarted("rust")
	r.BuildFinished("rust")
	assert.InDelta(t, 1, testutil.ToFloat64(r.activeBuilds.WithLabelValues("rust")), 0)

	r.AddStagedBytes("rust", 12)
	r.AddStagedBytes("rust", 0)
	assert.InDelta(t, 12, testutil.ToFloat64(r.stagedBytes.WithLabelValues("rust")), 0)
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var r *PrometheusRecorder
	assert.NotPanics(t, func() {
		r.ObserveBuild("rust", "success", time.Second)
		r.AddStagedBytes("rust", 1)
		r.BuildStarted("rust")
		r.BuildFinished("rust")
	})
}
