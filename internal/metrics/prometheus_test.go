package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := New()
	m.IncEvaluations()
	m.IncEvaluations()
	m.IncSkipped()
	m.IncTransition(models.StateAlarm)
	m.IncFetchFailure(true)
	m.IncFetchFailure(false)
	m.IncSideEffectFailure("update")
	m.IncDefinitionErrors()

	s := m.Snapshot()

	assert.Equal(t, int64(2), s.Evaluations)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Equal(t, int64(1), s.Transitions[models.StateAlarm])
	assert.Equal(t, int64(1), s.FetchFailures["transient"])
	assert.Equal(t, int64(1), s.FetchFailures["fatal"])
	assert.Equal(t, int64(1), s.SideEffectFailures["update"])
	assert.Equal(t, int64(1), s.DefinitionErrors)
}

func TestMetrics_HandlerExposesTextFormat(t *testing.T) {
	m := New()
	m.IncEvaluations()
	m.IncTransition(models.StateOK)
	m.IncTransition(models.StateOK)
	m.SetCircuitBreakerState("statistics", resilience.StateOpen)

	a := models.NewAlarm("a", "cpu_util", models.OperatorGT, 80)
	b := models.NewAlarm("b", "cpu_util", models.OperatorGT, 80)
	b.State = models.StateAlarm
	m.ObserveCycle(1500*time.Millisecond, []*models.Alarm{a, b})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)

	require.Contains(t, families, "alarm_evaluator_evaluations_total")
	assert.Equal(t, 1.0, families["alarm_evaluator_evaluations_total"].GetMetric()[0].GetCounter().GetValue())

	transitions := families["alarm_evaluator_transitions_total"]
	require.NotNil(t, transitions)
	require.Len(t, transitions.GetMetric(), 1)
	assert.Equal(t, 2.0, transitions.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "ok", transitions.GetMetric()[0].GetLabel()[0].GetValue())

	assert.Equal(t, 1.5, families["alarm_evaluator_cycle_duration_seconds"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, families["alarm_evaluator_assigned_alarms"].GetMetric()[0].GetGauge().GetValue())
	assert.Len(t, families["alarm_evaluator_alarms"].GetMetric(), 2)
	assert.Equal(t, 1.0, families["alarm_evaluator_circuit_breaker_state"].GetMetric()[0].GetGauge().GetValue())

	assert.NotContains(t, families, "alarm_evaluator_fetch_failures_total", "empty families are omitted")
}

func TestMetrics_GatherSorted(t *testing.T) {
	families := New().Gather()

	for i := 1; i < len(families); i++ {
		assert.Less(t, families[i-1].GetName(), families[i].GetName())
	}
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
