package domain

import "time"

// Config holds the complete fraudscore configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier selects the default infrastructure stack
	Tier Tier `json:"tier"`

	// Model artifacts and scoring policy
	Model   ModelConfig   `json:"model"`
	Risk    RiskConfig    `json:"risk"`
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelConfig locates the trained classifier and its feature metadata.
type ModelConfig struct {
	ModelPath    string `json:"modelPath"`
	MetadataPath string `json:"metadataPath"`
}

// RiskConfig holds the decision threshold and band boundaries.
type RiskConfig struct {
	DecisionThreshold float64 `json:"decisionThreshold"`
	MediumLower       float64 `json:"mediumLower"`
	HighLower         float64 `json:"highLower"`
}

// ScoringConfig holds engine tuning.
type ScoringConfig struct {
	MaxWorkers   int           `json:"maxWorkers"`
	MaxBatchSize int           `json:"maxBatchSize"`
	CacheTTL     time.Duration `json:"cacheTTL"`
	AsyncWorker  bool          `json:"asyncWorker"`
	WorkerCount  int           `json:"workerCount"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"serviceName"`
	ExporterType string  `json:"exporterType"` // otlp, none
	Endpoint     string  `json:"endpoint"`
	Insecure     bool    `json:"insecure"`
	SampleRatio  float64 `json:"sampleRatio"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, in-process channels and a local LRU cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Model: ModelConfig{
			ModelPath:    "./models/fraud_model.json",
			MetadataPath: "./models/feature_info.json",
		},
		Risk: RiskConfig{
			DecisionThreshold: 0.5,
			MediumLower:       0.3,
			HighLower:         0.7,
		},
		Scoring: ScoringConfig{
			MaxWorkers:   16,
			MaxBatchSize: 1000,
			CacheTTL:     5 * time.Minute,
			AsyncWorker:  true,
			WorkerCount:  4,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscore",
			SampleRatio: 1.0,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "fraudscore",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.ExporterType = "otlp"
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.Insecure = true
	return cfg
}
