package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Graph backend configuration
	Graph GraphConfig `mapstructure:"graph"`

	// Entry store configuration
	Entries EntriesConfig `mapstructure:"entries"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Extraction configuration
	Extraction ExtractionConfig `mapstructure:"extraction"`

	// Access control configuration
	Access AccessConfig `mapstructure:"access"`

	// Retrieval tuning
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GraphConfig holds knowledge graph backend configuration.
type GraphConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, ladybug, memory
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`
	// TimeoutSeconds bounds individual backend calls.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// EntriesConfig holds entry store configuration.
type EntriesConfig struct {
	Store string `mapstructure:"store"` // memory, badger
	Path  string `mapstructure:"path"`
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // local, openai, none
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// ExtractionConfig holds entity extraction configuration.
type ExtractionConfig struct {
	Backend string `mapstructure:"backend"` // prose, gliner, rustbert, none
	// Model is a local path or model id, backend dependent.
	Model string `mapstructure:"model"`
}

// AccessConfig holds access control configuration.
type AccessConfig struct {
	// RulesPath points at a YAML rule file; empty uses an in-memory store.
	RulesPath             string `mapstructure:"rules_path"`
	AllowUnknownConsumers bool   `mapstructure:"allow_unknown_consumers"`
}

// RetrievalConfig tunes ranking.
type RetrievalConfig struct {
	DefaultLimit       int     `mapstructure:"default_limit"`
	MinSimilarity      float64 `mapstructure:"min_similarity"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
	SemanticWeight     float64 `mapstructure:"semantic_weight"`
	RecencyWeight      float64 `mapstructure:"recency_weight"`
	FrequencyWeight    float64 `mapstructure:"frequency_weight"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
}

// TelemetryConfig holds telemetry configuration.
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// CircuitBreakerConfig holds configuration for circuit breaking.
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// AlertConfig holds SMTP alerting configuration. Alerts fire when a backend
// circuit breaker opens.
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Graph defaults
	viper.SetDefault("graph.driver", "memory")
	viper.SetDefault("graph.uri", "./recall_graph")
	viper.SetDefault("graph.username", "")
	viper.SetDefault("graph.password", "")
	viper.SetDefault("graph.database", "")
	viper.SetDefault("graph.enabled", true)
	viper.SetDefault("graph.timeout_seconds", 5)

	// Entry store defaults
	viper.SetDefault("entries.store", "memory")
	viper.SetDefault("entries.path", "./recall_entries")

	// Embedding defaults
	viper.SetDefault("embedding.provider", "local")
	viper.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("embedding.batch_size", 100)

	// Extraction defaults
	viper.SetDefault("extraction.backend", "prose")

	// Access defaults
	viper.SetDefault("access.rules_path", "")
	viper.SetDefault("access.allow_unknown_consumers", false)

	// Retrieval defaults
	viper.SetDefault("retrieval.default_limit", 10)
	viper.SetDefault("retrieval.min_similarity", 0.0)
	viper.SetDefault("retrieval.duplicate_threshold", 0.92)
	viper.SetDefault("retrieval.semantic_weight", 0.6)
	viper.SetDefault("retrieval.recency_weight", 0.3)
	viper.SetDefault("retrieval.frequency_weight", 0.1)
	viper.SetDefault("retrieval.timeout_seconds", 5)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:9090")

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Alert defaults
	viper.SetDefault("alert.enabled", false)
	viper.SetDefault("alert.smtp_port", 587)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.recall/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables.
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}

	// Graph backend credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Graph.Driver = "neo4j"
		config.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Graph.Password = pass
	}

	// Generic graph settings
	if driver := os.Getenv("GRAPH_DRIVER"); driver != "" {
		config.Graph.Driver = driver
	}
	if uri := os.Getenv("GRAPH_URI"); uri != "" {
		config.Graph.URI = uri
	}

	// Entry store settings
	if store := os.Getenv("ENTRY_STORE"); store != "" {
		config.Entries.Store = store
	}
	if path := os.Getenv("ENTRY_STORE_PATH"); path != "" {
		config.Entries.Path = path
	}

	// Access rules
	if path := os.Getenv("ACCESS_RULES_PATH"); path != "" {
		config.Access.RulesPath = path
	}
	if v := os.Getenv("ALLOW_UNKNOWN_CONSUMERS"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			config.Access.AllowUnknownConsumers = parsed
		}
	}

	// Log settings
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
