package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/anvil/pkg/lcm"
	"github.com/cuemby/anvil/pkg/log"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ANVIL_"

// Config holds process configuration
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	LogLevel        string        `yaml:"log_level"`
	LogJSON         bool          `yaml:"log_json"`
	MinTaskVersion  string        `yaml:"min_task_version"`
	Concurrency     int           `yaml:"concurrency"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:         "./anvil-data",
		LogLevel:        string(log.InfoLevel),
		MinTaskVersion:  lcm.DefaultMinTaskVersion,
		Concurrency:     1,
		MetricsAddr:     "127.0.0.1:9100",
		CollectInterval: 15 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (optional), then ANVIL_* environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = GetEnv(EnvPrefix+"DATA_DIR", c.DataDir)
	c.LogLevel = GetEnv(EnvPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogJSON = GetEnvBool(EnvPrefix+"LOG_JSON", c.LogJSON)
	c.MinTaskVersion = GetEnv(EnvPrefix+"MIN_TASK_VERSION", c.MinTaskVersion)
	c.Concurrency = GetEnvInt(EnvPrefix+"CONCURRENCY", c.Concurrency)
	c.MetricsAddr = GetEnv(EnvPrefix+"METRICS_ADDR", c.MetricsAddr)
	c.CollectInterval = GetEnvDuration(EnvPrefix+"COLLECT_INTERVAL", c.CollectInterval)
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch log.Level(c.LogLevel) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

// LogConfig returns the logger settings
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.LogLevel),
		JSONOutput: c.LogJSON,
		Output:     os.Stderr,
	}
}

// SerializerOptions returns the graph engine settings
func (c *Config) SerializerOptions() lcm.Options {
	return lcm.Options{
		MinTaskVersion: c.MinTaskVersion,
		Concurrency:    c.Concurrency,
	}
}

// LoadEnv loads environment files that exist, without overriding variables
// already set in the process. It returns the files loaded.
func LoadEnv(files ...string) []string {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	logger := log.WithComponent("config")
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to load env file")
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) > 0 {
		logger.Debug().Str("files", strings.Join(loaded, ", ")).Msg("Loaded env files")
	}
	return loaded
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration gets a duration environment variable with a default value
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
