package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.Int("port", 8777, "simulator server port")
	base := flag.Float64("base", 50, "default base value for new meters")
	variance := flag.Float64("variance", 10, "default variance for new meters")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "development")
	logger.Info("Starting statistics simulator")

	sim := simulator.New(simulator.Config{
		Port:            *port,
		DefaultBase:     *base,
		DefaultVariance: *variance,
	})

	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator")
	return sim.Stop()
}
