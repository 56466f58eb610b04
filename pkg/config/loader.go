package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "ALARM_EVALUATOR"

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alarm-evaluator")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults and env vars only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "alarm-evaluator")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "alarms")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.ping_timeout", "10s")
	v.SetDefault("database.migration_timeout", "60s")

	// Statistics backend defaults
	v.SetDefault("statistics.type", "http")
	v.SetDefault("statistics.endpoint", "http://localhost:8777")
	v.SetDefault("statistics.timeout", "5s")
	v.SetDefault("statistics.circuit_breaker.max_failures", 5)
	v.SetDefault("statistics.circuit_breaker.timeout", "30s")

	// Evaluator defaults
	v.SetDefault("evaluator.interval", "60s")
	v.SetDefault("evaluator.concurrency", 1)

	// Notifier defaults
	v.SetDefault("notifier.log", true)
	v.SetDefault("notifier.webhook.enabled", false)
	v.SetDefault("notifier.webhook.timeout", "5s")
	v.SetDefault("notifier.kafka.enabled", false)
	v.SetDefault("notifier.kafka.brokers", "localhost:9092")
	v.SetDefault("notifier.kafka.topic", "alarm.transitions")

	// Partition defaults
	v.SetDefault("partition.enabled", false)
	v.SetDefault("partition.redis_addr", "localhost:6379")
	v.SetDefault("partition.redis_db", 0)
	v.SetDefault("partition.key_prefix", "alarm-evaluator:members:")
	v.SetDefault("partition.heartbeat_ttl", "3m")

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.history_limit", 100)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}
