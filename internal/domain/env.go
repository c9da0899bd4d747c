package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfig builds the configuration from FRAUDSCORE_* environment variables.
// A .env file in the working directory is loaded first when present.
// FRAUDSCORE_TIER=pro starts from ProConfig instead of DefaultConfig.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if os.Getenv("FRAUDSCORE_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	e := &envReader{}

	cfg.Server.Host = getEnv("FRAUDSCORE_HOST", cfg.Server.Host)
	cfg.Server.Port = e.int("FRAUDSCORE_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = e.int("FRAUDSCORE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = e.int("FRAUDSCORE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Model.ModelPath = getEnv("FRAUDSCORE_MODEL_PATH", cfg.Model.ModelPath)
	cfg.Model.MetadataPath = getEnv("FRAUDSCORE_METADATA_PATH", cfg.Model.MetadataPath)

	cfg.Risk.DecisionThreshold = e.float("FRAUDSCORE_DECISION_THRESHOLD", cfg.Risk.DecisionThreshold)
	cfg.Risk.MediumLower = e.float("FRAUDSCORE_RISK_MEDIUM", cfg.Risk.MediumLower)
	cfg.Risk.HighLower = e.float("FRAUDSCORE_RISK_HIGH", cfg.Risk.HighLower)

	cfg.Scoring.MaxWorkers = e.int("FRAUDSCORE_MAX_WORKERS", cfg.Scoring.MaxWorkers)
	cfg.Scoring.MaxBatchSize = e.int("FRAUDSCORE_MAX_BATCH_SIZE", cfg.Scoring.MaxBatchSize)
	cfg.Scoring.CacheTTL = e.duration("FRAUDSCORE_SCORE_CACHE_TTL", cfg.Scoring.CacheTTL)
	cfg.Scoring.AsyncWorker = e.bool("FRAUDSCORE_ASYNC_WORKER", cfg.Scoring.AsyncWorker)
	cfg.Scoring.WorkerCount = e.int("FRAUDSCORE_WORKER_COUNT", cfg.Scoring.WorkerCount)

	cfg.Repository.Driver = getEnv("FRAUDSCORE_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("FRAUDSCORE_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("FRAUDSCORE_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = e.int("FRAUDSCORE_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("FRAUDSCORE_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("FRAUDSCORE_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("FRAUDSCORE_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("FRAUDSCORE_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = getEnv("FRAUDSCORE_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("FRAUDSCORE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("FRAUDSCORE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = e.int("FRAUDSCORE_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.LocalMaxSize = e.int("FRAUDSCORE_CACHE_SIZE", cfg.Cache.LocalMaxSize)

	cfg.EventBus.Type = getEnv("FRAUDSCORE_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("FRAUDSCORE_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("FRAUDSCORE_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.KafkaBrokers = getEnv("FRAUDSCORE_KAFKA_BROKERS", cfg.EventBus.KafkaBrokers)
	cfg.EventBus.KafkaGroupID = getEnv("FRAUDSCORE_KAFKA_GROUP", cfg.EventBus.KafkaGroupID)

	cfg.Logging.Level = getEnv("FRAUDSCORE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("FRAUDSCORE_LOG_FORMAT", cfg.Logging.Format)
	if os.Getenv("FRAUDSCORE_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	cfg.Tracing.Enabled = e.bool("FRAUDSCORE_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("FRAUDSCORE_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = e.bool("FRAUDSCORE_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRatio = e.float("FRAUDSCORE_TRACE_SAMPLE_RATIO", cfg.Tracing.SampleRatio)

	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Risk.DecisionThreshold <= 0 || c.Risk.DecisionThreshold > 1 {
		return fmt.Errorf("decision threshold must be in (0, 1], got %v", c.Risk.DecisionThreshold)
	}
	if !(0 < c.Risk.MediumLower && c.Risk.MediumLower < c.Risk.HighLower && c.Risk.HighLower <= 1) {
		return fmt.Errorf("risk bands must satisfy 0 < medium (%v) < high (%v) <= 1", c.Risk.MediumLower, c.Risk.HighLower)
	}
	if c.Scoring.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.Scoring.MaxWorkers)
	}
	if c.Scoring.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.Scoring.MaxBatchSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and keeps the first failure.
type envReader struct {
	err error
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *envReader) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return i
}

func (e *envReader) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return f
}

func (e *envReader) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return b
}

func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return d
}
