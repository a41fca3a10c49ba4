package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
)

func gatherFamily(t *testing.T, m *MetricsService, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func counterValue(family *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range family.GetMetric() {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if labels[pair.GetName()] == pair.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func TestMetricsServiceObserveDiff(t *testing.T) {
	m := NewMetricsService()
	m.ObserveDiff(models.DiffResult{
		ToCreate: []models.Slot{{SlotID: "a"}, {SlotID: "b"}},
		ToDelete: []models.Slot{{SlotID: "c"}},
	}, 3*time.Millisecond)

	family := gatherFamily(t, m, "schedule_diff_slots_total")
	assert.Equal(t, 2.0, counterValue(family, map[string]string{"bucket": "create"}))
	assert.Equal(t, 1.0, counterValue(family, map[string]string{"bucket": "delete"}))
	assert.Equal(t, 0.0, counterValue(family, map[string]string{"bucket": "update"}))
	assert.EqualValues(t, 1, m.Snapshot().DiffsTotal)
}

func TestMetricsServiceDeletionKept(t *testing.T) {
	m := NewMetricsService()
	m.DeletionKept("mass_deletion", models.CategoryTicketClass)
	m.DeletionKept("mass_deletion", models.CategoryTicketClass)

	family := gatherFamily(t, m, "schedule_deletions_kept_total")
	assert.Equal(t, 2.0, counterValue(family, map[string]string{"rule": "mass_deletion", "category": "ticket_class"}))
	assert.EqualValues(t, 2, m.Snapshot().GuardKeepsTotal)
}

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/schedule/sessions/:id", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/schedule/sessions/:id", http.StatusOK, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordSave("committed")
	m.SetActiveSessions(4)

	snapshot := m.Snapshot()
	assert.EqualValues(t, 2, snapshot.RequestsTotal)
	assert.InDelta(t, 20.0, snapshot.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 0.5, snapshot.CacheHitRatio, 0.001)
	assert.EqualValues(t, 1, snapshot.SavesTotal)
	assert.EqualValues(t, 4, snapshot.ActiveSessions)
	assert.Positive(t, snapshot.Goroutines)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveDiff(models.DiffResult{}, time.Millisecond)
		m.DeletionKept("symmetric_size", models.CategoryGeneric)
		m.RecordPendingChange(models.ActionSimpleSlotCreate)
		m.RecordJob("q", "succeeded")
		m.SetActiveSessions(1)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordJob("ticket-class-enrichment", "succeeded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `background_jobs_total{outcome="succeeded",queue="ticket-class-enrichment"} 1`))
}
