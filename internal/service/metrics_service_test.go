package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	metrics := NewMetricsService()

	metrics.ObserveHTTPRequest(http.MethodPatch, "/students/:id/status", http.StatusOK, 20*time.Millisecond)
	metrics.ObserveHTTPRequest(http.MethodPatch, "/students/:id/status", http.StatusConflict, 40*time.Millisecond)
	metrics.ObserveTransition(models.StudentStatusActive, models.StudentStatusPaused, outcomeCommitted, time.Millisecond)
	metrics.ObserveTransition(models.StudentStatusActive, models.StudentStatusPaused, outcomeCommitted, time.Millisecond)
	metrics.ObserveTransition("", models.StudentStatusTrial, outcomeCommitted, time.Millisecond)
	metrics.ObserveTransition(models.StudentStatusWithdrawn, models.StudentStatusActive, outcomeFailed, time.Millisecond)
	metrics.ObserveCreditApplied(80000)
	metrics.ObserveTrialsExpired(3)
	metrics.ObserveTrialsExpired(0)
	metrics.RecordCacheOperation(true, time.Millisecond)
	metrics.RecordCacheOperation(false, time.Millisecond)
	metrics.RecordCacheOperation(true, time.Millisecond)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.RequestsTotal)
	assert.InDelta(t, 30.0, snapshot.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snapshot.Transitions["active->paused"])
	assert.Equal(t, uint64(1), snapshot.Transitions["new->trial"])
	assert.Equal(t, uint64(1), snapshot.TransitionFailures)
	assert.Equal(t, uint64(1), snapshot.CreditsApplied)
	assert.Equal(t, int64(80000), snapshot.CreditAmountApplied)
	assert.Equal(t, uint64(3), snapshot.TrialsExpired)
	assert.InDelta(t, 2.0/3.0, snapshot.CacheHitRatio, 0.0001)
	assert.Greater(t, snapshot.Goroutines, 0)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveTransition(models.StudentStatusPaused, models.StudentStatusActive, outcomeCommitted, time.Millisecond)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `student_transitions_total{from="paused",outcome="committed",to="active"} 1`)
	assert.Contains(t, body, "trials_expired_total")
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var metrics *MetricsService

	assert.NotPanics(t, func() {
		metrics.ObserveTransition(models.StudentStatusActive, models.StudentStatusPaused, outcomeCommitted, time.Millisecond)
		metrics.ObserveCreditApplied(1000)
		metrics.RecordCacheOperation(true, time.Millisecond)
	})
	assert.Equal(t, models.SystemMetrics{}, metrics.Snapshot())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
