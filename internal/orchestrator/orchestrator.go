// Package orchestrator assembles the evaluation service from configuration:
// statistics fetcher, notifier chain, partitioning, evaluator and scheduler.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OldStager01/alarm-evaluator/internal/collector"
	"github.com/OldStager01/alarm-evaluator/internal/evaluator"
	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/metrics"
	"github.com/OldStager01/alarm-evaluator/internal/notifier"
	"github.com/OldStager01/alarm-evaluator/internal/partition"
	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/internal/scheduler"
	"github.com/OldStager01/alarm-evaluator/pkg/config"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

const leaveTimeout = 5 * time.Second

// Store is the alarm system of record. *queries.AlarmRepository satisfies it.
type Store interface {
	ListAll(ctx context.Context) ([]*models.Alarm, error)
	UpdateState(ctx context.Context, alarmID string, state models.AlarmState) error
	RecordTransition(ctx context.Context, t *models.Transition) error
}

type Option func(*options)

type options struct {
	fetcher   collector.Fetcher
	redis     redis.UniversalClient
	notifiers []notifier.Notifier
	metrics   *metrics.Metrics
}

// WithFetcher replaces the configured statistics backend. It is still wrapped in the circuit breaker.
func WithFetcher(f collector.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRedis supplies the membership client instead of dialing partition.redis_addr.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithNotifier appends a sink after the configured ones.
func WithNotifier(n notifier.Notifier) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, n) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

type Orchestrator struct {
	config      *config.Config
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	fetcher     *collector.ResilientFetcher
	kafka       *notifier.KafkaNotifier
	redis       redis.UniversalClient
	ownsRedis   bool
	coordinator *partition.Coordinator
	evaluator   *evaluator.Evaluator
	scheduler   *scheduler.Scheduler
	metrics     *metrics.Metrics
}

func New(cfg *config.Config, store Store, opts ...Option) (*Orchestrator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.Get()
	}

	orch := &Orchestrator{
		config:   cfg,
		eventBus: events.NewEventBus(cfg.Events.BufferSize),
		metrics:  o.metrics,
	}

	orch.eventLogger = events.NewEventLogger(store, orch.eventBus.SubscribeAllDurable(models.EventTypeAlarmTransition))
	publisher := events.NewPublisher(orch.eventBus)

	orch.fetcher = orch.buildFetcher(o.fetcher)

	sink, err := orch.buildNotifier(publisher, o.notifiers)
	if err != nil {
		orch.fetcher.Close()
		return nil, err
	}

	orch.coordinator = orch.buildCoordinator(o.redis)

	orch.evaluator = evaluator.New(evaluator.Config{
		Fetcher:     orch.fetcher,
		Updater:     store,
		Notifier:    sink,
		Publisher:   publisher,
		Metrics:     orch.metrics,
		Concurrency: cfg.Evaluator.Concurrency,
	})

	orch.scheduler = scheduler.New(scheduler.Config{
		Interval:     cfg.Evaluator.Interval,
		CycleTimeout: cfg.Evaluator.CycleTimeout,
		Source:       store,
		Partitioner:  orch.coordinator,
		Evaluator:    orch.evaluator,
		Publisher:    publisher,
	})

	return orch, nil
}

func (o *Orchestrator) buildFetcher(override collector.Fetcher) *collector.ResilientFetcher {
	backend := override
	if backend == nil {
		switch o.config.Statistics.Type {
		case "mock":
			backend = collector.NewMockFetcher()
		default:
			backend = collector.NewHTTPFetcher(collector.HTTPFetcherConfig{
				Endpoint: o.config.Statistics.Endpoint,
				Timeout:  o.config.Statistics.Timeout,
			})
		}
	}

	o.metrics.SetCircuitBreakerState("statistics", resilience.StateClosed)

	return collector.NewResilientFetcher(collector.ResilientFetcherConfig{
		Fetcher:     backend,
		MaxFailures: o.config.Statistics.CircuitBreaker.MaxFailures,
		Timeout:     o.config.Statistics.CircuitBreaker.Timeout,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
			o.metrics.SetCircuitBreakerState(name, to)
		},
	})
}

// buildNotifier always includes the event notifier so transitions reach history and websocket clients.
func (o *Orchestrator) buildNotifier(publisher *events.Publisher, extra []notifier.Notifier) (notifier.Notifier, error) {
	cfg := o.config.Notifier
	sinks := notifier.Multi{notifier.NewEventNotifier(publisher)}

	if cfg.Log {
		sinks = append(sinks, notifier.NewLogNotifier())
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, notifier.NewWebhookNotifier(notifier.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
			Headers: cfg.Webhook.Headers,
		}))
	}
	if cfg.Kafka.Enabled {
		kafka, err := notifier.NewKafkaNotifier(notifier.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		o.kafka = kafka
		sinks = append(sinks, kafka)
	}

	sinks = append(sinks, extra...)
	logger.Infof("Notifier chain has %d sinks", len(sinks))
	return sinks, nil
}

func (o *Orchestrator) buildCoordinator(client redis.UniversalClient) *partition.Coordinator {
	cfg := o.config.Partition
	if !cfg.Enabled {
		return partition.NewCoordinator(partition.CoordinatorConfig{MemberID: cfg.MemberID})
	}

	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		o.ownsRedis = true
	}
	o.redis = client

	return partition.NewCoordinator(partition.CoordinatorConfig{
		Membership: partition.NewRedisMembership(client, cfg.KeyPrefix),
		MemberID:   cfg.MemberID,
		TTL:        cfg.HeartbeatTTL,
	})
}

func (o *Orchestrator) Start() error {
	logger.WithField("member_id", o.coordinator.MemberID()).Info("Orchestrator starting")
	o.eventLogger.Start()
	return o.scheduler.Start()
}

// Stop halts scheduling, leaves the partition group and releases backends.
func (o *Orchestrator) Stop() error {
	logger.Info("Orchestrator stopping")

	o.scheduler.Stop()

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := o.coordinator.Leave(ctx); err != nil {
		errs = append(errs, fmt.Errorf("leave partition group: %w", err))
	}

	if o.kafka != nil {
		if err := o.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if o.ownsRedis {
		if err := o.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := o.fetcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close fetcher: %w", err))
	}

	// Closing the bus ends the logger's subscription; Stop then drains what is buffered.
	o.eventBus.Close()
	o.eventLogger.Stop()

	logger.Info("Orchestrator stopped")
	return errors.Join(errs...)
}

// RunCycle evaluates once outside the schedule. History is persisted even if Start was never called.
func (o *Orchestrator) RunCycle(ctx context.Context) (*evaluator.CycleReport, error) {
	o.eventLogger.Start()
	return o.scheduler.RunCycle(ctx)
}

func (o *Orchestrator) Evaluator() *evaluator.Evaluator {
	return o.evaluator
}

func (o *Orchestrator) EventBus() *events.EventBus {
	return o.eventBus
}

func (o *Orchestrator) Fetcher() collector.Fetcher {
	return o.fetcher
}

func (o *Orchestrator) Scheduler() *scheduler.Scheduler {
	return o.scheduler
}

func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.metrics
}
