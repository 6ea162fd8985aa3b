package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "PORT", "LOG_LEVEL", "APP_ENV", "STORE_DRIVER", "HIGH_PRIORITY_AMOUNT",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"KAFKA_BROKERS", "KAFKA_ORDERS_TOPIC", "KAFKA_CONSUMER_GROUP",
	"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
	"REMINDER_THRESHOLD_DAYS", "REMINDER_SCAN_INTERVAL",
	"KAFKA_BREAKER_THRESHOLD", "KAFKA_BREAKER_RESET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TRUST_FORWARDED_FOR", "CORS_ORIGINS", "OUTBOX_PROCESSING_TIMEOUT",
}

// clearEnv unsets every config key for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range configKeys {
		if value, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, value) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "500", cfg.HighPriorityAmount.String())
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders", cfg.Kafka.OrdersTopic)
	assert.Equal(t, 5, cfg.Reminders.ThresholdDays)
	assert.Equal(t, time.Hour, cfg.Reminders.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 5, cfg.Kafka.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Kafka.BreakerReset)
	assert.True(t, cfg.RateLimit.Enabled())
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.TrustForwardedFor)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Outbox.ProcessingTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REMINDER_THRESHOLD_DAYS", "3")
	t.Setenv("REMINDER_SCAN_INTERVAL", "15m")
	t.Setenv("HIGH_PRIORITY_AMOUNT", "250.75")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("TRUST_FORWARDED_FOR", "true")
	t.Setenv("CORS_ORIGINS", "https://portal.example.com, http://localhost:3000")
	t.Setenv("OUTBOX_PROCESSING_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 3, cfg.Reminders.ThresholdDays)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.ScanInterval)
	assert.Equal(t, "250.75", cfg.HighPriorityAmount.String())
	assert.False(t, cfg.RateLimit.Enabled())
	assert.True(t, cfg.RateLimit.TrustForwardedFor)
	assert.Equal(t, []string{"https://portal.example.com", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.Outbox.ProcessingTimeout)
}

func TestLoad_EmptyBrokersDisableKafka(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"PORT":                      "eighty",
		"STORE_DRIVER":              "redis",
		"REMINDER_THRESHOLD_DAYS":   "-1",
		"REMINDER_SCAN_INTERVAL":    "0s",
		"HIGH_PRIORITY_AMOUNT":      "lots",
		"OUTBOX_POLL_INTERVAL":      "soon",
		"RATE_LIMIT_RPS":            "-2",
		"KAFKA_BREAKER_RESET":       "never",
		"TRUST_FORWARDED_FOR":       "sometimes",
		"OUTBOX_PROCESSING_TIMEOUT": "-1m",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "portal.yaml")
	content := `
port: 7000
app_env: production
db:
  host: pg.internal
  name: portal
kafka:
  brokers:
    - a:9092
    - b:9092
reminder:
  threshold_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_NAME", "override")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "pg.internal", cfg.DB.Host)
	assert.Equal(t, "override", cfg.DB.Name)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Reminders.ThresholdDays)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestGetDBConnString(t *testing.T) {
	cfg := &Config{DB: DBConfig{Host: "h", Port: 1, User: "u", Password: "p", Name: "n", SSLMode: "disable"}}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", cfg.GetDBConnString())
}
