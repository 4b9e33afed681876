package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Data configuration
	Data DataConfig `mapstructure:"data"`

	// Train configuration
	Train TrainConfig `mapstructure:"train"`

	// Model configuration
	Model ModelConfig `mapstructure:"model"`

	// Evidence configuration
	Evidence EvidenceConfig `mapstructure:"evidence"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the status server configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DataConfig holds dataset configuration
type DataConfig struct {
	// Manifest is the path to the dataset manifest file
	Manifest string `mapstructure:"manifest"`
}

// TrainConfig holds training configuration
type TrainConfig struct {
	Mode          string `mapstructure:"mode"` // all, reader, selector
	BatchSize     int    `mapstructure:"batch_size"`
	TestBatchSize int    `mapstructure:"test_batch_size"`
	NumEpochs     int    `mapstructure:"num_epochs"`
	TopN          int    `mapstructure:"top_n"`
	DisplayIter   int    `mapstructure:"display_iter"`
	ValidateEvery int    `mapstructure:"validate_every"`
	ValidMetric   string `mapstructure:"valid_metric"` // exact_match, f1
	Seed          int64  `mapstructure:"seed"`
	ModelDir      string `mapstructure:"model_dir"`
	ModelName     string `mapstructure:"model_name"`
	Checkpoint    bool   `mapstructure:"checkpoint"`
	Resume        string `mapstructure:"resume"` // checkpoint to load before training
}

// ModelConfig holds the model backend configuration
type ModelConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"` // in seconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// AlertConfig holds email alerting configuration for run completion and
// failure notifications
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// EvidenceConfig holds evidence label configuration
type EvidenceConfig struct {
	TopK    int    `mapstructure:"top_k"`
	Backend string `mapstructure:"backend"` // memory, badger
	Path    string `mapstructure:"path"`    // badger directory
	// LabelFile names an explicit evidence blob to load at startup, used when
	// no round id is given (labels saved under another model name, or
	// bootstrapped externally).
	LabelFile string `mapstructure:"label_file"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Load loads configuration from file and environment variables
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

// Validate checks that the configuration can support a run. Missing input
// files are fatal here rather than mid-epoch.
func (c *Config) Validate() error {
	if c.Data.Manifest == "" {
		return fmt.Errorf("data manifest path is required")
	}
	if _, err := os.Stat(c.Data.Manifest); err != nil {
		return fmt.Errorf("data manifest not readable: %w", err)
	}

	switch c.Train.Mode {
	case "all", "reader", "selector":
	default:
		return fmt.Errorf("unsupported train mode: %s", c.Train.Mode)
	}

	switch c.Train.ValidMetric {
	case "exact_match", "f1":
	default:
		return fmt.Errorf("unsupported validation metric: %s", c.Train.ValidMetric)
	}

	if c.Train.BatchSize <= 0 || c.Train.TestBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Train.NumEpochs <= 0 {
		return fmt.Errorf("num_epochs must be positive, got %d", c.Train.NumEpochs)
	}
	if c.Train.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.Train.TopN)
	}
	// Both are modulus operands in the epoch loop; zero would be a runtime
	// panic mid-epoch instead of a startup failure.
	if c.Train.DisplayIter <= 0 {
		return fmt.Errorf("display_iter must be positive, got %d", c.Train.DisplayIter)
	}
	if c.Train.ValidateEvery <= 0 {
		return fmt.Errorf("validate_every must be positive, got %d", c.Train.ValidateEvery)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}

	if c.Model.BaseURL == "" {
		return fmt.Errorf("model backend base URL is required")
	}

	if c.Evidence.TopK <= 0 {
		return fmt.Errorf("evidence top_k must be positive, got %d", c.Evidence.TopK)
	}

	switch c.Evidence.Backend {
	case "memory":
	case "badger":
		if c.Evidence.Path == "" {
			return fmt.Errorf("evidence path is required for the badger backend")
		}
	default:
		return fmt.Errorf("unsupported evidence backend: %s", c.Evidence.Backend)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Alert.Enabled {
		if c.Alert.SMTPHost == "" || c.Alert.From == "" || len(c.Alert.To) == 0 {
			return fmt.Errorf("alerting requires smtp_host, from and at least one recipient")
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	// Data defaults
	viper.SetDefault("data.manifest", "./data/dataset.yaml")

	// Train defaults
	viper.SetDefault("train.mode", "all")
	viper.SetDefault("train.batch_size", 128)
	viper.SetDefault("train.test_batch_size", 64)
	viper.SetDefault("train.num_epochs", 20)
	viper.SetDefault("train.top_n", 1)
	viper.SetDefault("train.display_iter", 25)
	viper.SetDefault("train.validate_every", 200)
	viper.SetDefault("train.valid_metric", "exact_match")
	viper.SetDefault("train.seed", 1012)
	viper.SetDefault("train.model_dir", "./models")
	viper.SetDefault("train.model_name", "")
	viper.SetDefault("train.checkpoint", false)

	// Model backend defaults
	viper.SetDefault("model.base_url", "http://localhost:8500")
	viper.SetDefault("model.timeout", 600)
	viper.SetDefault("model.max_retries", 3)

	// Alert defaults
	viper.SetDefault("alert.enabled", false)
	viper.SetDefault("alert.smtp_port", 587)

	// Evidence defaults
	viper.SetDefault("evidence.top_k", 2000)
	viper.SetDefault("evidence.backend", "memory")
	viper.SetDefault("evidence.label_file", "")

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.evidential/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Data settings
	if manifest := os.Getenv("EVIDENTIAL_MANIFEST"); manifest != "" {
		config.Data.Manifest = manifest
	}

	// Evidence settings
	if backend := os.Getenv("EVIDENCE_BACKEND"); backend != "" {
		config.Evidence.Backend = backend
	}
	if path := os.Getenv("EVIDENCE_PATH"); path != "" {
		config.Evidence.Path = path
	}
	if file := os.Getenv("EVIDENCE_LABEL_FILE"); file != "" {
		config.Evidence.LabelFile = file
	}

	// Model backend settings
	if url := os.Getenv("MODEL_BASE_URL"); url != "" {
		config.Model.BaseURL = url
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
