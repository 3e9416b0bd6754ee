package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusService_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc, err := NewPrometheusService(reg)
	require.NoError(t, err)

	svc.RecordDecision("list", "explicit", "high", 120*time.Millisecond)
	svc.RecordDecision("list", "explicit", "high", 80*time.Millisecond)
	svc.RecordSignal("llm", 2*time.Second, false)
	svc.RecordFallback("llm_classifier", "timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(svc.decisions.WithLabelValues("list", "explicit", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.signals.WithLabelValues("llm", "absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.fallbacks.WithLabelValues("llm_classifier", "timeout")))

	count, err := testutil.GatherAndCount(reg, "calroute_router_decision_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusService_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusService(reg)
	require.NoError(t, err)

	_, err = NewPrometheusService(reg)
	assert.Error(t, err)
}

func TestMockMetricsService(t *testing.T) {
	m := NewMockMetricsService()
	m.RecordFallback("semantic_matcher", "timeout")
	m.RecordFallback("llm_classifier", "malformed")
	m.RecordFallback("llm_classifier", "error")

	assert.Equal(t, 2, m.FallbackCount("llm_classifier"))
	assert.Equal(t, 1, m.FallbackCount("semantic_matcher"))
}
