package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "test-app",
			Mode:     "development",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "testdb",
			User:           "user",
			Password:       "pass",
			MaxConnections: 10,
		},
		Statistics: StatisticsConfig{
			Type:     "http",
			Endpoint: "http://localhost:8777",
			Timeout:  5 * time.Second,
		},
		Evaluator: EvaluatorConfig{
			Interval:    time.Minute,
			Concurrency: 1,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectErr   bool
		errContains string
	}{
		{
			name:       "valid config",
			modifyFunc: func(c *Config) {},
		},
		{
			name:        "invalid mode",
			modifyFunc:  func(c *Config) { c.App.Mode = "staging" },
			expectErr:   true,
			errContains: "app.mode",
		},
		{
			name:        "timeout not below interval",
			modifyFunc:  func(c *Config) { c.Statistics.Timeout = 2 * time.Minute },
			expectErr:   true,
			errContains: "statistics.timeout must be less than evaluator.interval",
		},
		{
			name:        "zero concurrency",
			modifyFunc:  func(c *Config) { c.Evaluator.Concurrency = 0 },
			expectErr:   true,
			errContains: "evaluator.concurrency",
		},
		{
			name:        "unknown statistics type",
			modifyFunc:  func(c *Config) { c.Statistics.Type = "grpc" },
			expectErr:   true,
			errContains: "statistics.type",
		},
		{
			name:        "webhook without url",
			modifyFunc:  func(c *Config) { c.Notifier.Webhook.Enabled = true },
			expectErr:   true,
			errContains: "notifier.webhook.url",
		},
		{
			name: "kafka without topic",
			modifyFunc: func(c *Config) {
				c.Notifier.Kafka = KafkaConfig{Enabled: true, Brokers: "localhost:9092"}
			},
			expectErr:   true,
			errContains: "notifier.kafka",
		},
		{
			name: "heartbeat shorter than interval",
			modifyFunc: func(c *Config) {
				c.Partition = PartitionConfig{Enabled: true, RedisAddr: "localhost:6379", HeartbeatTTL: 30 * time.Second}
			},
			expectErr:   true,
			errContains: "partition.heartbeat_ttl",
		},
		{
			name:        "invalid api port",
			modifyFunc:  func(c *Config) { c.API.Port = 70000 },
			expectErr:   true,
			errContains: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)

			err := cfg.Validate()

			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := validConfig()
	cfg.App.Name = ""
	cfg.Database.Host = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.name")
	assert.Contains(t, err.Error(), "database.host")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "alarm-evaluator", cfg.App.Name)
	assert.Equal(t, time.Minute, cfg.Evaluator.Interval)
	assert.Equal(t, 1, cfg.Evaluator.Concurrency)
	assert.Equal(t, 5, cfg.Statistics.CircuitBreaker.MaxFailures)
	assert.Equal(t, "alarm.transitions", cfg.Notifier.Kafka.Topic)
	assert.Equal(t, 3*time.Minute, cfg.Partition.HeartbeatTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  mode: production
  log_level: warn
statistics:
  endpoint: http://stats:8777
evaluator:
  interval: 30s
notifier:
  webhook:
    enabled: true
    url: http://hooks/alarm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ALARM_EVALUATOR_EVALUATOR_CONCURRENCY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Mode)
	assert.Equal(t, "http://stats:8777", cfg.Statistics.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Evaluator.Interval)
	assert.Equal(t, 4, cfg.Evaluator.Concurrency)
	assert.True(t, cfg.Notifier.Webhook.Enabled)
	assert.Equal(t, "http://hooks/alarm", cfg.Notifier.Webhook.URL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_ToDBConfig(t *testing.T) {
	db := validConfig().Database.ToDBConfig()
	assert.Equal(t, "testdb", db.Name)
	assert.Equal(t, 10, db.MaxConnections)
}
