// Package evaluator drives threshold alarms through their state machine once per cycle.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/analyzer"
	"github.com/OldStager01/alarm-evaluator/internal/collector"
	"github.com/OldStager01/alarm-evaluator/internal/decision"
	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/metrics"
	"github.com/OldStager01/alarm-evaluator/internal/notifier"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
	"github.com/OldStager01/alarm-evaluator/pkg/validation"
)

// StateUpdater is the system of record for alarm state.
type StateUpdater interface {
	UpdateState(ctx context.Context, alarmID string, state models.AlarmState) error
}

type Config struct {
	Fetcher   collector.Fetcher
	Updater   StateUpdater
	Notifier  notifier.Notifier
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	// Concurrency bounds how many alarms are evaluated at once. 1 evaluates in assignment order.
	Concurrency int
	Now         func() time.Time
}

type Evaluator struct {
	fetcher     collector.Fetcher
	updater     StateUpdater
	notifier    notifier.Notifier
	publisher   *events.Publisher
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time

	mu     sync.RWMutex
	alarms []*models.Alarm
}

func New(cfg Config) *Evaluator {
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Evaluator{
		fetcher:     cfg.Fetcher,
		updater:     cfg.Updater,
		notifier:    cfg.Notifier,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
	}
}

// Assign replaces the tracked alarms wholesale. The alarms themselves are not touched.
func (e *Evaluator) Assign(alarms []*models.Alarm) {
	tracked := make([]*models.Alarm, len(alarms))
	copy(tracked, alarms)

	e.mu.Lock()
	e.alarms = tracked
	e.mu.Unlock()

	logger.Debugf("Assigned %d alarms", len(tracked))
}

// Alarms returns copies of the tracked alarms, safe to read while a cycle runs.
func (e *Evaluator) Alarms() []models.Alarm {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Alarm, len(e.alarms))
	for i, alarm := range e.alarms {
		out[i] = *alarm
	}
	return out
}

// Alarm returns a copy of one tracked alarm.
func (e *Evaluator) Alarm(id string) (models.Alarm, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, alarm := range e.alarms {
		if alarm.ID == id {
			return *alarm, true
		}
	}
	return models.Alarm{}, false
}

func (e *Evaluator) tracked() []*models.Alarm {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.alarms
}

// CycleReport summarises one call to Evaluate.
type CycleReport struct {
	CycleID     string
	Evaluated   int
	Skipped     int
	Transitions []*models.Transition
	// Failures holds the error of every alarm that could not be fully evaluated, by alarm id.
	Failures map[string]error
	Duration time.Duration
}

type outcome struct {
	skipped    bool
	transition *models.Transition
	err        error
}

// Evaluate runs one cycle over every tracked alarm. Failures are isolated per
// alarm: the returned error joins them and the report says which alarm failed.
// Transient statistics failures are not failures; they read as missing data.
func (e *Evaluator) Evaluate(ctx context.Context) (*CycleReport, error) {
	start := e.now()

	cycleID := logger.CycleIDFromContext(ctx)
	if cycleID == "" {
		cycleID = models.NewUUID()
		ctx = logger.WithCycleID(ctx, cycleID)
	}
	publisher := e.publisher.WithTraceID(cycleID)

	alarms := e.tracked()
	outcomes := make([]outcome, len(alarms))

	if e.concurrency == 1 || len(alarms) <= 1 {
		for i, alarm := range alarms {
			outcomes[i] = e.evaluateAlarm(ctx, publisher, alarm)
		}
	} else {
		sem := make(chan struct{}, e.concurrency)
		var wg sync.WaitGroup
		for i, alarm := range alarms {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, alarm *models.Alarm) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes[i] = e.evaluateAlarm(ctx, publisher, alarm)
			}(i, alarm)
		}
		wg.Wait()
	}

	report := &CycleReport{
		CycleID:  cycleID,
		Failures: make(map[string]error),
	}

	var errs []error
	for i, out := range outcomes {
		if out.skipped {
			report.Skipped++
			continue
		}
		report.Evaluated++
		if out.transition != nil {
			report.Transitions = append(report.Transitions, out.transition)
		}
		if out.err != nil {
			report.Failures[alarms[i].ID] = out.err
			errs = append(errs, fmt.Errorf("alarm %s: %w", alarms[i].ID, out.err))
		}
	}

	report.Duration = e.now().Sub(start)
	e.metrics.ObserveCycle(report.Duration, alarms)

	publisher.CycleComplete(events.CycleSummary{
		Evaluated:   report.Evaluated,
		Skipped:     report.Skipped,
		Transitions: len(report.Transitions),
		Failures:    len(report.Failures),
		Duration:    report.Duration,
	})

	logger.InfoCtxf(ctx, "Cycle complete: %d evaluated, %d skipped, %d transitions, %d failures in %s",
		report.Evaluated, report.Skipped, len(report.Transitions), len(report.Failures), report.Duration)

	return report, errors.Join(errs...)
}

func (e *Evaluator) evaluateAlarm(ctx context.Context, publisher *events.Publisher, alarm *models.Alarm) outcome {
	if !alarm.Enabled {
		e.metrics.IncSkipped()
		return outcome{skipped: true}
	}

	log := logger.AlarmCtx(ctx, alarm.ID)

	if err := validation.ValidateAlarm(alarm); err != nil {
		log.Errorf("Alarm definition rejected: %v", err)
		e.metrics.IncDefinitionErrors()
		publisher.Error(alarm.ID, "Alarm definition rejected", err)
		return outcome{err: err}
	}

	samples, err := e.fetcher.Fetch(ctx, models.NewStatisticsQuery(alarm, e.now()))
	if err != nil {
		transient := collector.IsTransient(err)
		e.metrics.IncFetchFailure(transient)
		publisher.FetchFailed(alarm.ID, err)
		if !transient {
			log.Errorf("Statistics fetch failed: %v", err)
			return outcome{err: fmt.Errorf("fetch statistics: %w", err)}
		}
		log.Warnf("Statistics backend unavailable, treating as no data: %v", err)
		samples = nil
	}

	verdict, err := analyzer.Analyze(alarm, samples)
	if err != nil {
		log.Errorf("Alarm cannot be classified: %v", err)
		e.metrics.IncDefinitionErrors()
		return outcome{err: err}
	}
	e.metrics.IncEvaluations()

	d := decision.Decide(alarm.State, verdict)
	publisher.AlarmEvaluated(alarm.ID, events.EvaluationResult{
		State:   d.Next,
		Verdict: string(verdict.Kind),
		Samples: len(samples),
	})

	if !d.Changed() {
		return outcome{}
	}

	if err := e.updater.UpdateState(ctx, alarm.ID, d.Next); err != nil {
		log.Errorf("Failed to record transition %s -> %s: %v", d.Previous, d.Next, err)
		e.metrics.IncSideEffectFailure("update")
		publisher.UpdateFailed(alarm.ID, d.Next, err)
		return outcome{err: fmt.Errorf("update state to %s: %w", d.Next, err)}
	}

	e.mu.Lock()
	alarm.SetState(d.Next, e.now())
	e.mu.Unlock()

	e.metrics.IncTransition(d.Next)
	transition := models.NewTransition(alarm, d.Previous, d.Next, d.Reason)

	log.WithFields(map[string]interface{}{
		"previous": d.Previous,
		"state":    d.Next,
		"reason":   d.Reason,
	}).Info("Alarm transitioned")

	if err := e.notifier.Notify(ctx, alarm, d.Previous, d.Next, d.Reason); err != nil {
		log.Errorf("Failed to notify transition to %s: %v", d.Next, err)
		e.metrics.IncSideEffectFailure("notify")
		publisher.NotifyFailed(alarm.ID, d.Next, err)
		return outcome{transition: transition, err: fmt.Errorf("notify %s: %w", d.Next, err)}
	}

	return outcome{transition: transition}
}
