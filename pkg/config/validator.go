package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, errors.New("database.port must be between 1 and 65535"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Database.MaxConnections <= 0 {
		errs = append(errs, errors.New("database.max_connections must be positive"))
	}

	// Statistics validation
	validTypes := map[string]bool{"http": true, "mock": true}
	if !validTypes[c.Statistics.Type] {
		errs = append(errs, errors.New("statistics.type must be one of: http, mock"))
	}
	if c.Statistics.Type == "http" && c.Statistics.Endpoint == "" {
		errs = append(errs, errors.New("statistics.endpoint is required"))
	}
	if c.Statistics.Timeout <= 0 {
		errs = append(errs, errors.New("statistics.timeout must be positive"))
	}

	// Evaluator validation
	if c.Evaluator.Interval <= 0 {
		errs = append(errs, errors.New("evaluator.interval must be positive"))
	}
	if c.Statistics.Timeout >= c.Evaluator.Interval {
		errs = append(errs, errors.New("statistics.timeout must be less than evaluator.interval"))
	}
	if c.Evaluator.Concurrency < 1 {
		errs = append(errs, errors.New("evaluator.concurrency must be at least 1"))
	}

	// Notifier validation
	if c.Notifier.Webhook.Enabled && c.Notifier.Webhook.URL == "" {
		errs = append(errs, errors.New("notifier.webhook.url is required when the webhook is enabled"))
	}
	if c.Notifier.Kafka.Enabled && (c.Notifier.Kafka.Brokers == "" || c.Notifier.Kafka.Topic == "") {
		errs = append(errs, errors.New("notifier.kafka.brokers and topic are required when kafka is enabled"))
	}

	// Partition validation
	if c.Partition.Enabled {
		if c.Partition.RedisAddr == "" {
			errs = append(errs, errors.New("partition.redis_addr is required when partitioning is enabled"))
		}
		if c.Partition.HeartbeatTTL <= c.Evaluator.Interval {
			errs = append(errs, errors.New("partition.heartbeat_ttl must exceed evaluator.interval"))
		}
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}

	return nil
}
