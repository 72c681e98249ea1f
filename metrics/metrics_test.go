package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycleMetrics(t *testing.T) {
	m := New()

	m.JobStarted()
	m.JobStarted()
	m.JobFinished("completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed")))
}

func TestProbeAndExportMetrics(t *testing.T) {
	m := New()

	m.ProbeObserved("open", 10*time.Millisecond)
	m.ProbeObserved("closed", 20*time.Millisecond)
	m.ProbeObserved("closed", 30*time.Millisecond)
	m.ExportRecorded("csv", "success")

	assert.Equal(t, 2, testutil.CollectAndCount(m.probes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probes.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("csv", "success")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodGet, "/api/scans", http.StatusOK, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "portwatch_api_requests_total")
	assert.Contains(t, rr.Body.String(), "portwatch_jobs_started_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobStarted()
		m.JobFinished("stopped")
		m.ProbeObserved("open", time.Second)
		m.ExportRecorded("pdf", "error")
		m.HTTPRequest(http.MethodGet, "/", http.StatusOK, time.Second)
	})
	assert.Nil(t, m.Registry())
}
