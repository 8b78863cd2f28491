package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.TaskCompleted("success")
	m.ResourceProcessed("cache")
	m.ResourceProcessed("cache")
	m.ActionDispatched("click", "failure")
	m.OracleFallback("should_reuse")
	m.NavigationAttempt()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resources.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("click", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleFallbacks.WithLabelValues("should_reuse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.navAttempts))

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var nilMetrics *Metrics
		assert.NotPanics(t, func() {
			nilMetrics.TaskCompleted("error")
			nilMetrics.NavigationAttempt()
			assert.Nil(t, nilMetrics.Registry())
		})
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.TaskCompleted("success")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rabbit_tasks_total{status="success"} 1`)
}
