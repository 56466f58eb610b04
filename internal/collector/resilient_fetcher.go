package collector

import (
	"context"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// ResilientFetcher guards a fetcher with a circuit breaker. It never retries
// within a cycle; the next scheduled cycle is the retry.
type ResilientFetcher struct {
	fetcher        Fetcher
	circuitBreaker *resilience.CircuitBreaker
}

type ResilientFetcherConfig struct {
	Fetcher       Fetcher
	MaxFailures   int
	Timeout       time.Duration
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientFetcher(cfg ResilientFetcherConfig) *ResilientFetcher {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "statistics",
		MaxFailures:   cfg.MaxFailures,
		Timeout:       cfg.Timeout,
		IsFailure:     IsTransient,
		OnStateChange: cfg.OnStateChange,
	})

	return &ResilientFetcher{
		fetcher:        cfg.Fetcher,
		circuitBreaker: cb,
	}
}

func (f *ResilientFetcher) Fetch(ctx context.Context, query models.StatisticsQuery) ([]models.Sample, error) {
	var samples []models.Sample

	err := f.circuitBreaker.Execute(func() error {
		var err error
		samples, err = f.fetcher.Fetch(ctx, query)
		return err
	})
	if err != nil {
		logger.WithField("meter", query.MetricName).Debugf("Statistics fetch failed (circuit %s): %v",
			f.circuitBreaker.State(), err)
		return nil, err
	}

	return samples, nil
}

func (f *ResilientFetcher) HealthCheck(ctx context.Context) error {
	return f.fetcher.HealthCheck(ctx)
}

func (f *ResilientFetcher) Close() error {
	return f.fetcher.Close()
}

func (f *ResilientFetcher) CircuitState() resilience.State {
	return f.circuitBreaker.State()
}

func (f *ResilientFetcher) ResetCircuit() {
	f.circuitBreaker.Reset()
}
