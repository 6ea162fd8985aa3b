package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port               int
	LogLevel           string
	Env                string
	StoreDriver        string
	HighPriorityAmount decimal.Decimal
	CORSOrigins        []string
	DB                 DBConfig
	Kafka              KafkaConfig
	Outbox             OutboxConfig
	Reminders          ReminderConfig
	RateLimit          RateLimitConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig holds the broker settings. An empty broker list disables
// publishing and consuming; outbox events are then only logged.
type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string

	// BreakerThreshold consecutive publish failures open the circuit for
	// BreakerReset
	BreakerThreshold int
	BreakerReset     time.Duration
}

// Enabled reports whether any broker is configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// OutboxConfig controls the outbox relay. Messages left processing for
// longer than ProcessingTimeout are requeued.
type OutboxConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	MaxRetries        int
	ProcessingTimeout time.Duration
}

// ReminderConfig controls stale order detection
type ReminderConfig struct {
	ThresholdDays int
	ScanInterval  time.Duration
}

// RateLimitConfig limits API requests per client address. A zero rate
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustForwardedFor keys clients by X-Forwarded-For, for use behind a proxy
	TrustForwardedFor bool
}

// Enabled reports whether requests are limited
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerSecond > 0
}

// source resolves a key from the environment first, then the config file
type source struct {
	file map[string]string
}

// getEnv retrieves the value of an environment variable, falling back to the
// config file and then to defaultValue.
func (s source) getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	if value, exists := s.file[key]; exists {
		return value
	}

	return defaultValue
}

func (s source) getInt(key string, defaultValue int) (int, error) {
	raw := s.getEnv(key, strconv.Itoa(defaultValue))
	v, err := strconv.Atoi(strings.TrimSpace(raw))

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func (s source) getFloat(key string, defaultValue float64) (float64, error) {
	raw := s.getEnv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64))
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}

	return v, nil
}

func (s source) getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := s.getEnv(key, defaultValue.String())
	v, err := time.ParseDuration(strings.TrimSpace(raw))

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}

	return v, nil
}

func (s source) getBool(key string, defaultValue bool) (bool, error) {
	raw := s.getEnv(key, strconv.FormatBool(defaultValue))
	v, err := strconv.ParseBool(strings.TrimSpace(raw))

	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

// Load reads the configuration from environment variables and returns a Config struct.
// When CONFIG_FILE names a YAML file its values act as defaults for the
// environment.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))

	if err != nil {
		return nil, err
	}

	src := source{file: file}

	port, err := src.getInt("PORT", 8080)

	if err != nil {
		return nil, err
	}

	dbPort, err := src.getInt("DB_PORT", 5432)

	if err != nil {
		return nil, err
	}

	batchSize, err := src.getInt("OUTBOX_BATCH_SIZE", 10)

	if err != nil {
		return nil, err
	}

	maxRetries, err := src.getInt("OUTBOX_MAX_RETRIES", 3)

	if err != nil {
		return nil, err
	}

	pollInterval, err := src.getDuration("OUTBOX_POLL_INTERVAL", 5*time.Second)

	if err != nil {
		return nil, err
	}

	processingTimeout, err := src.getDuration("OUTBOX_PROCESSING_TIMEOUT", 5*time.Minute)

	if err != nil {
		return nil, err
	}

	threshold, err := src.getInt("REMINDER_THRESHOLD_DAYS", 5)

	if err != nil {
		return nil, err
	}

	if threshold < 0 {
		return nil, fmt.Errorf("invalid REMINDER_THRESHOLD_DAYS: must not be negative")
	}

	scanInterval, err := src.getDuration("REMINDER_SCAN_INTERVAL", time.Hour)

	if err != nil {
		return nil, err
	}

	breakerThreshold, err := src.getInt("KAFKA_BREAKER_THRESHOLD", 5)

	if err != nil {
		return nil, err
	}

	breakerReset, err := src.getDuration("KAFKA_BREAKER_RESET", 30*time.Second)

	if err != nil {
		return nil, err
	}

	rps, err := src.getFloat("RATE_LIMIT_RPS", 20)

	if err != nil {
		return nil, err
	}

	burst, err := src.getInt("RATE_LIMIT_BURST", 40)

	if err != nil {
		return nil, err
	}

	trustForwarded, err := src.getBool("TRUST_FORWARDED_FOR", false)

	if err != nil {
		return nil, err
	}

	highPriority, err := decimal.NewFromString(strings.TrimSpace(src.getEnv("HIGH_PRIORITY_AMOUNT", "500")))

	if err != nil {
		return nil, fmt.Errorf("invalid HIGH_PRIORITY_AMOUNT: %w", err)
	}

	driver := strings.ToLower(src.getEnv("STORE_DRIVER", StoreDriverPostgres))

	if driver != StoreDriverPostgres && driver != StoreDriverMemory {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", driver, StoreDriverPostgres, StoreDriverMemory)
	}

	return &Config{
		Port:               port,
		LogLevel:           src.getEnv("LOG_LEVEL", "info"),
		Env:                src.getEnv("APP_ENV", "development"),
		StoreDriver:        driver,
		HighPriorityAmount: highPriority,
		CORSOrigins:        splitList(src.getEnv("CORS_ORIGINS", "*")),
		DB: DBConfig{
			Host:     src.getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     src.getEnv("DB_USER", "postgres"),
			Password: src.getEnv("DB_PASSWORD", "postgres"),
			Name:     src.getEnv("DB_NAME", "support_portal"),
			SSLMode:  src.getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:          splitList(src.getEnv("KAFKA_BROKERS", "localhost:9092")),
			OrdersTopic:      src.getEnv("KAFKA_ORDERS_TOPIC", "orders"),
			ConsumerGroup:    src.getEnv("KAFKA_CONSUMER_GROUP", "support-portal"),
			BreakerThreshold: breakerThreshold,
			BreakerReset:     breakerReset,
		},
		Outbox: OutboxConfig{
			PollInterval:      pollInterval,
			BatchSize:         batchSize,
			MaxRetries:        maxRetries,
			ProcessingTimeout: processingTimeout,
		},
		Reminders: ReminderConfig{
			ThresholdDays: threshold,
			ScanInterval:  scanInterval,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
			TrustForwardedFor: trustForwarded,
		},
	}, nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

// IsProduction reports whether the app runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// loadFile reads a YAML file into environment-style keys. Nested maps are
// joined with underscores, so
//
//	db:
//	  host: pg
//
// yields DB_HOST=pg. Lists are joined with commas.
func loadFile(path string) (map[string]string, error) {
	out := make(map[string]string)

	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)

		if prefix != "" {
			key = prefix + "_" + key
		}

		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
