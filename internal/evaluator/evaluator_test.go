package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/alarm-evaluator/internal/collector"
	"github.com/OldStager01/alarm-evaluator/internal/comparator"
	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/metrics"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
	"github.com/OldStager01/alarm-evaluator/pkg/validation"
)

type updateCall struct {
	alarmID string
	state   models.AlarmState
}

type notifyCall struct {
	alarmID  string
	previous models.AlarmState
	state    models.AlarmState
	reason   string
}

// recorder is both the state sink and the notifier, so call order across the two is observable.
type recorder struct {
	mu        sync.Mutex
	updates   []updateCall
	notifies  []notifyCall
	order     []string
	updateErr map[string]error
	notifyErr error
}

func newRecorder() *recorder {
	return &recorder{updateErr: make(map[string]error)}
}

func (r *recorder) UpdateState(ctx context.Context, alarmID string, state models.AlarmState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, "update:"+alarmID)
	if err := r.updateErr[alarmID]; err != nil {
		return err
	}
	r.updates = append(r.updates, updateCall{alarmID, state})
	return nil
}

func (r *recorder) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, "notify:"+alarm.ID)
	r.notifies = append(r.notifies, notifyCall{alarm.ID, previous, state, reason})
	return r.notifyErr
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
	r.notifies = nil
	r.order = nil
}

func (r *recorder) reasons() []string {
	out := make([]string, len(r.notifies))
	for i, n := range r.notifies {
		out[i] = n.reason
	}
	return out
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// testAlarms returns A (gt 80 over 5 periods) and B (le 10 over 4 periods).
func testAlarms(state models.AlarmState) (*models.Alarm, *models.Alarm) {
	a := models.NewAlarm("cpu high", "cpu_util", models.OperatorGT, 80)
	a.ID = "alarm-a"
	a.EvaluationPeriods = 5
	a.Statistic = models.StatisticAvg
	a.State = state

	b := models.NewAlarm("cpu low", "cpu_util", models.OperatorLE, 10)
	b.ID = "alarm-b"
	b.EvaluationPeriods = 4
	b.Statistic = models.StatisticMax
	b.State = state

	return a, b
}

func newEvaluator(fetcher collector.Fetcher, rec *recorder) *Evaluator {
	return New(Config{
		Fetcher:  fetcher,
		Updater:  rec,
		Notifier: rec,
		Metrics:  metrics.New(),
		Now:      func() time.Time { return fixedNow },
	})
}

func TestEvaluate_TransientFailureThenRecovery(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.Enqueue(nil, collector.ErrCommunication).Enqueue(nil, collector.ErrCommunication)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())
	require.NoError(t, err, "transient failures never surface")
	assert.Empty(t, report.Failures)
	assert.Equal(t, models.StateInsufficientData, a.State)
	assert.Equal(t, models.StateInsufficientData, b.State)
	assert.Equal(t, []string{"5 datapoints are unknown", "4 datapoints are unknown"}, rec.reasons())

	rec.reset()
	fetcher.EnqueueValues(models.StatisticAvg, 79, 78, 77, 76, 75)
	fetcher.EnqueueValues(models.StatisticMax, 11, 12, 13, 14)

	_, err = e.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StateOK, a.State)
	assert.Equal(t, models.StateOK, b.State)
	assert.Equal(t, []updateCall{{"alarm-a", models.StateOK}, {"alarm-b", models.StateOK}}, rec.updates)
	assert.Equal(t, []string{
		"Transition to ok due to 5 samples inside threshold, most recent: 75.0",
		"Transition to ok due to 4 samples inside threshold, most recent: 14.0",
	}, rec.reasons())
}

func TestEvaluate_EmptyResultsFromOK(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateInsufficientData, a.State)
	assert.Equal(t, models.StateInsufficientData, b.State)
	assert.Equal(t, []updateCall{
		{"alarm-a", models.StateInsufficientData},
		{"alarm-b", models.StateInsufficientData},
	}, rec.updates)
	assert.Equal(t, []string{"5 datapoints are unknown", "4 datapoints are unknown"}, rec.reasons())
	require.Len(t, report.Transitions, 2)
	assert.Equal(t, models.StateOK, report.Transitions[0].Previous)
}

func TestEvaluate_PartialDataIsInsufficient(t *testing.T) {
	a, _ := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.EnqueueValues(models.StatisticAvg, 90, 91)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a})

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateInsufficientData, a.State)
	assert.Equal(t, []string{"3 datapoints are unknown"}, rec.reasons())
}

func TestEvaluate_TripToAlarm(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.EnqueueValues(models.StatisticAvg, 81, 82, 83, 84, 85)
	fetcher.EnqueueValues(models.StatisticMax, 6, 7, 8, 9)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateAlarm, a.State)
	assert.Equal(t, models.StateAlarm, b.State)
	require.NotNil(t, a.StateTimestamp)
	assert.Equal(t, fixedNow, *a.StateTimestamp)
	assert.Equal(t, []string{
		"Transition to alarm due to 5 samples outside threshold, most recent: 85.0",
		"Transition to alarm due to 4 samples outside threshold, most recent: 9.0",
	}, rec.reasons())
}

func TestEvaluate_ClearToOK(t *testing.T) {
	a, b := testAlarms(models.StateAlarm)
	fetcher := collector.NewMockFetcher()
	fetcher.EnqueueValues(models.StatisticAvg, 79, 78, 77, 76, 75)
	fetcher.EnqueueValues(models.StatisticMax, 14, 13, 12, 11)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateOK, a.State)
	assert.Equal(t, models.StateOK, b.State)
	assert.Equal(t, []notifyCall{
		{"alarm-a", models.StateAlarm, models.StateOK, "Transition to ok due to 5 samples inside threshold, most recent: 75.0"},
		{"alarm-b", models.StateAlarm, models.StateOK, "Transition to ok due to 4 samples inside threshold, most recent: 11.0"},
	}, rec.notifies)
}

func TestEvaluate_EquivocalKeepsState(t *testing.T) {
	tests := []struct {
		name  string
		start models.AlarmState
	}{
		{"from ok", models.StateOK},
		{"from alarm", models.StateAlarm},
		{"from insufficient data", models.StateInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testAlarms(tt.start)
			fetcher := collector.NewMockFetcher()
			fetcher.EnqueueValues(models.StatisticAvg, 80, 81, 82, 83, 84)
			rec := newRecorder()

			e := newEvaluator(fetcher, rec)
			e.Assign([]*models.Alarm{a})

			report, err := e.Evaluate(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.start, a.State)
			assert.Empty(t, rec.updates)
			assert.Empty(t, rec.notifies)
			assert.Empty(t, report.Transitions)
			assert.Equal(t, 1, report.Evaluated)
		})
	}
}

func TestEvaluate_ConfirmationIsSilent(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.EnqueueValues(models.StatisticAvg, 1, 2, 3, 4, 5)
	fetcher.EnqueueValues(models.StatisticMax, 20, 30, 40, 50)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rec.order)
	assert.Nil(t, a.StateTimestamp)
}

func TestEvaluate_DisabledAlarmIsInert(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	b.Enabled = false
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateInsufficientData, a.State)
	assert.Equal(t, models.StateOK, b.State)
	assert.Equal(t, []string{"update:alarm-a", "notify:alarm-a"}, rec.order)
	require.Len(t, fetcher.Queries(), 1)
	assert.Equal(t, "cpu_util", fetcher.Queries()[0].MetricName)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Evaluated)
}

func TestEvaluate_UpdateBeforeNotify(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"update:alarm-a", "notify:alarm-a", "update:alarm-b", "notify:alarm-b"}, rec.order)
}

func TestEvaluate_UpdateFailureIsIsolated(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()
	dbErr := errors.New("connection reset")
	rec.updateErr["alarm-a"] = dbErr

	m := metrics.New()
	e := New(Config{Fetcher: fetcher, Updater: rec, Notifier: rec, Metrics: m})
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.ErrorIs(t, report.Failures["alarm-a"], dbErr)
	assert.Equal(t, models.StateOK, a.State, "in-memory state follows the system of record")
	assert.Equal(t, models.StateInsufficientData, b.State)
	assert.Equal(t, []string{"update:alarm-a", "update:alarm-b", "notify:alarm-b"}, rec.order)
	assert.Equal(t, int64(1), m.Snapshot().SideEffectFailures["update"])
}

func TestEvaluate_NotifyFailureKeepsTransition(t *testing.T) {
	a, _ := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()
	rec.notifyErr = errors.New("webhook down")

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a})

	report, err := e.Evaluate(context.Background())

	assert.ErrorContains(t, err, "webhook down")
	assert.Equal(t, models.StateInsufficientData, a.State)
	assert.Len(t, report.Transitions, 1)
	assert.Contains(t, report.Failures, "alarm-a")
}

func TestEvaluate_ConfigurationDefectIsIsolated(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	a.ComparisonOperator = "gte"
	fetcher := collector.NewMockFetcher()
	fetcher.EnqueueValues(models.StatisticMax, 6, 7, 8, 9)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())

	assert.ErrorIs(t, err, comparator.ErrUnknownOperator)
	assert.ErrorIs(t, err, validation.ErrInvalidAlarm)
	assert.Equal(t, models.StateOK, a.State)
	assert.Equal(t, models.StateAlarm, b.State)
	assert.Len(t, fetcher.Queries(), 1, "invalid alarm is never fetched")
	assert.Len(t, report.Failures, 1)
}

func TestEvaluate_NonTransientFetchErrorIsFailure(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.Enqueue(nil, collector.ErrInvalidResponse)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})

	report, err := e.Evaluate(context.Background())

	assert.ErrorIs(t, err, collector.ErrInvalidResponse)
	assert.Equal(t, models.StateOK, a.State)
	assert.Equal(t, models.StateInsufficientData, b.State)
	assert.Contains(t, report.Failures, "alarm-a")
	assert.NotContains(t, report.Failures, "alarm-b")
}

func TestEvaluate_CanceledFetchKeepsState(t *testing.T) {
	a, _ := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	fetcher.Enqueue(nil, context.Canceled)
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a})

	report, err := e.Evaluate(context.Background())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StateOK, a.State)
	assert.Empty(t, report.Transitions)
	assert.Empty(t, rec.updates)
}

func TestEvaluate_QueryWindow(t *testing.T) {
	a, _ := testAlarms(models.StateOK)
	a.Period = 10 * time.Minute
	a.MatchingMetadata = map[string]string{"resource_id": "vm-1"}
	fetcher := collector.NewMockFetcher()

	e := newEvaluator(fetcher, newRecorder())
	e.Assign([]*models.Alarm{a})
	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	q := fetcher.Queries()[0]
	assert.Equal(t, models.StatisticAvg, q.Statistic)
	assert.Equal(t, 5, q.EvaluationPeriods)
	assert.Equal(t, fixedNow, q.End)
	assert.Equal(t, fixedNow.Add(-50*time.Minute), q.Start)
	assert.Equal(t, "vm-1", q.MatchingMetadata["resource_id"])
}

func TestEvaluate_Concurrent(t *testing.T) {
	fetcher := collector.NewMockFetcher()
	fetcher.SetDefault([]models.Sample{
		models.NewSample(models.StatisticAvg, 90),
		models.NewSample(models.StatisticAvg, 95),
	}, nil)
	rec := newRecorder()

	var alarms []*models.Alarm
	for i := 0; i < 20; i++ {
		alarm := models.NewAlarm("cpu", "cpu_util", models.OperatorGT, 80)
		alarm.EvaluationPeriods = 2
		alarm.State = models.StateOK
		alarms = append(alarms, alarm)
	}

	e := New(Config{Fetcher: fetcher, Updater: rec, Notifier: rec, Concurrency: 4})
	e.Assign(alarms)

	report, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, report.Evaluated)
	assert.Len(t, report.Transitions, 20)
	assert.Len(t, rec.updates, 20)
	assert.Len(t, rec.notifies, 20)
	for _, alarm := range e.Alarms() {
		assert.Equal(t, models.StateAlarm, alarm.State)
	}

	for i := 0; i < len(rec.order); i++ {
		if rec.order[i][:7] == "notify:" {
			id := rec.order[i][7:]
			assert.Contains(t, rec.order[:i], "update:"+id, "update precedes notify for %s", id)
		}
	}
}

func TestAssign_ReplacesWholesale(t *testing.T) {
	a, b := testAlarms(models.StateOK)
	fetcher := collector.NewMockFetcher()
	rec := newRecorder()

	e := newEvaluator(fetcher, rec)
	e.Assign([]*models.Alarm{a, b})
	e.Assign([]*models.Alarm{b})

	assert.Len(t, e.Alarms(), 1)
	_, ok := e.Alarm("alarm-a")
	assert.False(t, ok)
	assert.Equal(t, models.StateOK, a.State)

	_, err := e.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"update:alarm-b", "notify:alarm-b"}, rec.order)

	got, ok := e.Alarm("alarm-b")
	require.True(t, ok)
	assert.Equal(t, models.StateInsufficientData, got.State)
}

func TestEvaluate_PublishesEvents(t *testing.T) {
	a, _ := testAlarms(models.StateOK)
	bus := events.NewEventBus(10)
	defer bus.Close()
	evaluated := bus.Subscribe(models.EventTypeAlarmEvaluated)
	complete := bus.Subscribe(models.EventTypeCycleComplete)
	fetchFailed := bus.Subscribe(models.EventTypeFetchFailed)

	fetcher := collector.NewMockFetcher()
	fetcher.Enqueue(nil, collector.ErrTimeout)
	rec := newRecorder()

	e := New(Config{Fetcher: fetcher, Updater: rec, Notifier: rec, Publisher: events.NewPublisher(bus)})
	e.Assign([]*models.Alarm{a})

	report, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	require.Len(t, fetchFailed, 1)
	require.Len(t, evaluated, 1)
	event := <-complete
	assert.Equal(t, report.CycleID, event.TraceID)
	summary, ok := event.Data.(events.CycleSummary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Transitions)
}

func TestEvaluate_NoAlarms(t *testing.T) {
	e := newEvaluator(collector.NewMockFetcher(), newRecorder())

	report, err := e.Evaluate(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
	assert.Empty(t, report.Failures)
}
