package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OldStager01/alarm-evaluator/api"
	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/metrics"
	"github.com/OldStager01/alarm-evaluator/internal/orchestrator"
	"github.com/OldStager01/alarm-evaluator/pkg/config"
	"github.com/OldStager01/alarm-evaluator/pkg/database"
	"github.com/OldStager01/alarm-evaluator/pkg/database/queries"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	once := flag.Bool("once", false, "run a single evaluation cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	dbConfig := cfg.Database.ToDBConfig()
	dbConfig.ApplicationName = cfg.App.Name

	db, err := database.New(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if version, err := db.GetVersion(context.Background()); err == nil {
		logger.Infof("Database connection established: %s", version)
	}

	if *migrate {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
		defer cancel()

		logger.Info("Running database migrations")
		if err := database.NewMigrator(db).Run(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	if counts, err := db.CountAlarmsByState(context.Background()); err != nil {
		logger.Warnf("Could not summarise alarms: %v", err)
	} else {
		logger.WithFields(map[string]interface{}{
			"ok":                counts[models.StateOK],
			"alarm":             counts[models.StateAlarm],
			"insufficient_data": counts[models.StateInsufficientData],
		}).Info("Alarm definitions loaded")
	}

	repo := queries.NewAlarmRepository(db.DB)

	orch, err := orchestrator.New(cfg, repo, orchestrator.WithMetrics(metrics.Get()))
	if err != nil {
		return fmt.Errorf("failed to build evaluator: %w", err)
	}

	if *once {
		return runOnce(cfg, orch)
	}

	if cfg.Prometheus.Enabled {
		metrics.StartServer(cfg.Prometheus.Port)
	}

	server := api.NewServer(cfg.API, cfg.App.Mode, api.Dependencies{
		DB:         db,
		Statistics: orch.Fetcher(),
		Alarms:     orch.Evaluator(),
		History:    repo,
		Metrics:    orch.Metrics(),
		EventBus:   orch.EventBus(),
		WebSocket:  &cfg.WebSocket,
	})

	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start evaluator: %w", err)
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case err := <-errChan:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown error: %v", err)
	}
	if err := orch.Stop(); err != nil {
		logger.Errorf("Evaluator shutdown error: %v", err)
	}

	stats := db.GetConnectionStats()
	logger.WithFields(map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"wait_count":       stats.WaitCount,
	}).Info("Evaluator stopped gracefully")
	return runErr
}

func runOnce(cfg *config.Config, orch *orchestrator.Orchestrator) error {
	defer orch.Stop()

	timeout := cfg.Evaluator.CycleTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := orch.RunCycle(ctx)
	if report != nil {
		for _, t := range report.Transitions {
			fmt.Printf("%s\t%s -> %s\t%s\n", t.AlarmID, t.Previous, t.Current, t.Reason)
		}
		fmt.Printf("evaluated=%d skipped=%d transitions=%d failures=%d duration=%s\n",
			report.Evaluated, report.Skipped, len(report.Transitions), len(report.Failures), report.Duration)
	}
	return err
}
