package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

const namespace = "alarm_evaluator"

type Metrics struct {
	mu sync.RWMutex

	// Counters
	evaluationsTotal   int64
	skippedTotal       int64
	transitionsTotal   map[models.AlarmState]int64
	fetchFailures      map[string]int64 // transient | fatal
	sideEffectFailures map[string]int64 // update | notify
	definitionErrors   int64
	cyclesTotal        int64

	// Gauges
	assignedAlarms      int
	alarmsByState       map[models.AlarmState]int
	circuitBreakerState map[string]resilience.State
	cycleDuration       time.Duration
}

var (
	instance *Metrics
	once     sync.Once
)

func New() *Metrics {
	return &Metrics{
		transitionsTotal:    make(map[models.AlarmState]int64),
		fetchFailures:       make(map[string]int64),
		sideEffectFailures:  make(map[string]int64),
		alarmsByState:       make(map[models.AlarmState]int),
		circuitBreakerState: make(map[string]resilience.State),
	}
}

// Get returns the process-wide metrics registry.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

func (m *Metrics) IncEvaluations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluationsTotal++
}

func (m *Metrics) IncSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skippedTotal++
}

func (m *Metrics) IncTransition(state models.AlarmState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionsTotal[state]++
}

func (m *Metrics) IncFetchFailure(transient bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := "fatal"
	if transient {
		kind = "transient"
	}
	m.fetchFailures[kind]++
}

// IncSideEffectFailure counts a failed state update ("update") or notification ("notify").
func (m *Metrics) IncSideEffectFailure(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideEffectFailures[sink]++
}

func (m *Metrics) IncDefinitionErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitionErrors++
}

// ObserveCycle records a finished cycle and the state distribution of the alarms it owned.
func (m *Metrics) ObserveCycle(d time.Duration, alarms []*models.Alarm) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cyclesTotal++
	m.cycleDuration = d
	m.assignedAlarms = len(alarms)

	m.alarmsByState = make(map[models.AlarmState]int)
	for _, alarm := range alarms {
		m.alarmsByState[alarm.State]++
	}
}

func (m *Metrics) SetCircuitBreakerState(name string, state resilience.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerState[name] = state
}

// Snapshot is a point-in-time copy of the counters, used by the API and tests.
type Snapshot struct {
	Evaluations        int64                       `json:"evaluations"`
	Skipped            int64                       `json:"skipped"`
	Cycles             int64                       `json:"cycles"`
	Transitions        map[models.AlarmState]int64 `json:"transitions"`
	FetchFailures      map[string]int64            `json:"fetch_failures"`
	SideEffectFailures map[string]int64            `json:"side_effect_failures"`
	DefinitionErrors   int64                       `json:"definition_errors"`
	AssignedAlarms     int                         `json:"assigned_alarms"`
	LastCycleDuration  time.Duration               `json:"last_cycle_duration"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Evaluations:        m.evaluationsTotal,
		Skipped:            m.skippedTotal,
		Cycles:             m.cyclesTotal,
		Transitions:        make(map[models.AlarmState]int64, len(m.transitionsTotal)),
		FetchFailures:      make(map[string]int64, len(m.fetchFailures)),
		SideEffectFailures: make(map[string]int64, len(m.sideEffectFailures)),
		DefinitionErrors:   m.definitionErrors,
		AssignedAlarms:     m.assignedAlarms,
		LastCycleDuration:  m.cycleDuration,
	}
	for k, v := range m.transitionsTotal {
		s.Transitions[k] = v
	}
	for k, v := range m.fetchFailures {
		s.FetchFailures[k] = v
	}
	for k, v := range m.sideEffectFailures {
		s.SideEffectFailures[k] = v
	}
	return s
}

// Gather builds the metric families in name order.
func (m *Metrics) Gather() []*dto.MetricFamily {
	m.mu.RLock()
	defer m.mu.RUnlock()

	families := []*dto.MetricFamily{
		counterFamily("evaluations_total", "Alarms evaluated.", nil, float64(m.evaluationsTotal)),
		counterFamily("skipped_total", "Disabled alarms skipped.", nil, float64(m.skippedTotal)),
		counterFamily("cycles_total", "Evaluation cycles completed.", nil, float64(m.cyclesTotal)),
		counterFamily("definition_errors_total", "Alarm definitions rejected as invalid.", nil, float64(m.definitionErrors)),
		gaugeFamily("assigned_alarms", "Alarms owned by this evaluator.", nil, float64(m.assignedAlarms)),
		gaugeFamily("cycle_duration_seconds", "Duration of the last evaluation cycle.", nil, m.cycleDuration.Seconds()),
	}

	transitions := counterFamily("transitions_total", "Alarm state transitions by new state.", nil, 0)
	transitions.Metric = nil
	for state, count := range m.transitionsTotal {
		transitions.Metric = append(transitions.Metric, counterMetric(labels("state", string(state)), float64(count)))
	}
	families = append(families, transitions)

	fetch := counterFamily("fetch_failures_total", "Statistics fetch failures by kind.", nil, 0)
	fetch.Metric = nil
	for kind, count := range m.fetchFailures {
		fetch.Metric = append(fetch.Metric, counterMetric(labels("kind", kind), float64(count)))
	}
	families = append(families, fetch)

	sideEffects := counterFamily("side_effect_failures_total", "Failed state updates and notifications.", nil, 0)
	sideEffects.Metric = nil
	for sink, count := range m.sideEffectFailures {
		sideEffects.Metric = append(sideEffects.Metric, counterMetric(labels("sink", sink), float64(count)))
	}
	families = append(families, sideEffects)

	byState := gaugeFamily("alarms", "Owned alarms by current state.", nil, 0)
	byState.Metric = nil
	for state, count := range m.alarmsByState {
		byState.Metric = append(byState.Metric, gaugeMetric(labels("state", string(state)), float64(count)))
	}
	families = append(families, byState)

	breakers := gaugeFamily("circuit_breaker_state", "Circuit breaker state (0=closed, 1=open, 2=half-open).", nil, 0)
	breakers.Metric = nil
	for name, state := range m.circuitBreakerState {
		breakers.Metric = append(breakers.Metric, gaugeMetric(labels("name", name), float64(state)))
	}
	families = append(families, breakers)

	out := families[:0]
	for _, mf := range families {
		if len(mf.Metric) == 0 {
			continue
		}
		sort.Slice(mf.Metric, func(i, j int) bool {
			return labelKey(mf.Metric[i]) < labelKey(mf.Metric[j])
		})
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetName() < out[j].GetName()
	})
	return out
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range m.Gather() {
			if err := enc.Encode(mf); err != nil {
				logger.Errorf("Failed to encode metric family %s: %v", mf.GetName(), err)
				return
			}
		}
	})
}

func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Get().Handler())

	addr := ":" + strconv.Itoa(port)
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
}

func counterFamily(name, help string, lbls []*dto.LabelPair, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{counterMetric(lbls, value)},
	}
}

func gaugeFamily(name, help string, lbls []*dto.LabelPair, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{gaugeMetric(lbls, value)},
	}
}

func counterMetric(lbls []*dto.LabelPair, value float64) *dto.Metric {
	return &dto.Metric{Label: lbls, Counter: &dto.Counter{Value: ptr(value)}}
}

func gaugeMetric(lbls []*dto.LabelPair, value float64) *dto.Metric {
	return &dto.Metric{Label: lbls, Gauge: &dto.Gauge{Value: ptr(value)}}
}

func labels(name, value string) []*dto.LabelPair {
	return []*dto.LabelPair{{Name: ptr(name), Value: ptr(value)}}
}

func labelKey(m *dto.Metric) string {
	key := ""
	for _, l := range m.GetLabel() {
		key += l.GetName() + "=" + l.GetValue() + ","
	}
	return key
}

func ptr[T any](v T) *T {
	return &v
}
