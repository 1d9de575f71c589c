// Package config loads server configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file,
// then the process environment. Environment keys use the LANDED prefix and
// the section name, e.g. LANDED_SERVER_PORT or LANDED_ORACLE_PROVIDER.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "LANDED"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Storage     StorageConfig     `yaml:"storage" envconfig:"STORAGE"`
	Oracle      OracleConfig      `yaml:"oracle" envconfig:"ORACLE"`
	Calculation CalculationConfig `yaml:"calculation" envconfig:"CALCULATION"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// StorageConfig selects the suspension directory and history store.
type StorageConfig struct {
	Driver      string `yaml:"driver" envconfig:"DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`
	MaxConns    int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

// OracleConfig selects and tunes the rate oracle.
type OracleConfig struct {
	Provider         string        `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL          string        `yaml:"base_url" envconfig:"BASE_URL"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	RPS              float64       `yaml:"rps" envconfig:"RPS"`
	Burst            int           `yaml:"burst" envconfig:"BURST"`
	ScheduleFile     string        `yaml:"schedule_file" envconfig:"SCHEDULE_FILE"`
	ReloadInterval   time.Duration `yaml:"reload_interval" envconfig:"RELOAD_INTERVAL"`
	FreightPercent   string        `yaml:"freight_percent" envconfig:"FREIGHT_PERCENT"`
	InsurancePercent string        `yaml:"insurance_percent" envconfig:"INSURANCE_PERCENT"`
}

// CalculationConfig tunes the landed cost service.
type CalculationConfig struct {
	RequestTimeout     time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	CompareConcurrency int           `yaml:"compare_concurrency" envconfig:"COMPARE_CONCURRENCY"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "landed-cost.db",
			MaxConns:   10,
		},
		Oracle: OracleConfig{
			Provider:         "table",
			Timeout:          10 * time.Second,
			RPS:              20,
			Burst:            5,
			ReloadInterval:   time.Minute,
			FreightPercent:   "5",
			InsurancePercent: "0.5",
		},
		Calculation: CalculationConfig{
			RequestTimeout:     15 * time.Second,
			CompareConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: true,
		},
	}
}

// Options locates the optional files. Empty paths fall back to
// LANDED_CONFIG_FILE and ".env".
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load builds the configuration. Missing optional files are not errors.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if configFile != "" {
		if err := loadFromFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Conventional unprefixed name
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite storage requires sqlite_path")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("postgres storage requires database_url")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))
	switch c.Oracle.Provider {
	case "table", "":
	case "http":
		if c.Oracle.BaseURL == "" {
			return errors.New("http oracle requires base_url")
		}
	default:
		return fmt.Errorf("unknown oracle provider: %q", c.Oracle.Provider)
	}

	if c.Calculation.CompareConcurrency < 1 {
		return fmt.Errorf("compare_concurrency must be at least 1, got %d", c.Calculation.CompareConcurrency)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
