// Package scheduler runs evaluation cycles on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/evaluator"
	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// DefinitionSource loads the full set of alarm definitions.
type DefinitionSource interface {
	ListAll(ctx context.Context) ([]*models.Alarm, error)
}

// Partitioner narrows the definitions to the ones this instance owns.
type Partitioner interface {
	Assign(ctx context.Context, alarms []*models.Alarm) ([]*models.Alarm, error)
}

type Config struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	Source       DefinitionSource
	Partitioner  Partitioner
	Evaluator    *evaluator.Evaluator
	Publisher    *events.Publisher
}

type Scheduler struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	reportMu   sync.RWMutex
	lastReport *evaluator.CycleReport
}

func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
		if cfg.Interval > 2*time.Second {
			cfg.CycleTimeout = cfg.Interval - time.Second
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.wg.Add(1)
	go s.run()

	logger.Infof("Scheduler started, interval %s", s.config.Interval)
	return nil
}

// Stop waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the report of the most recent completed cycle, or nil.
func (s *Scheduler) LastReport() *evaluator.CycleReport {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.lastReport
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.CycleTimeout)
	defer cancel()

	if _, err := s.RunCycle(ctx); err != nil {
		logger.ErrorCtxf(ctx, "Evaluation cycle finished with errors: %v", err)
	}
}

// RunCycle loads definitions, keeps the owned ones and evaluates them once.
// A failed load skips evaluation; the evaluator keeps its previous assignment.
func (s *Scheduler) RunCycle(ctx context.Context) (*evaluator.CycleReport, error) {
	cycleID := models.NewUUID()
	ctx = logger.WithCycleID(ctx, cycleID)

	alarms, err := s.config.Source.ListAll(ctx)
	if err != nil {
		s.config.Publisher.WithTraceID(cycleID).Error("", "Failed to load alarm definitions", err)
		return nil, fmt.Errorf("load alarm definitions: %w", err)
	}

	if s.config.Partitioner != nil {
		alarms, err = s.config.Partitioner.Assign(ctx, alarms)
		if err != nil {
			s.config.Publisher.WithTraceID(cycleID).Error("", "Failed to partition alarms", err)
			return nil, fmt.Errorf("partition alarms: %w", err)
		}
	}

	s.config.Evaluator.Assign(alarms)

	report, err := s.config.Evaluator.Evaluate(ctx)

	s.reportMu.Lock()
	s.lastReport = report
	s.reportMu.Unlock()

	return report, err
}
