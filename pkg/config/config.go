// Package config handles configuration for Stratum. Settings are loaded from
// a YAML config file via viper with STRATUM_* environment variable overrides;
// CLI flags take precedence over both.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Config holds all configuration for the Stratum warehouse engine.
type Config struct {
	// DataDir is the root directory holding the bronze/silver/gold tiers.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogEncoding selects the log output format (json or console).
	LogEncoding string `mapstructure:"log_encoding" yaml:"log_encoding"`

	// Raw holds configuration for the bronze-tier raw record store.
	Raw RawConfig `mapstructure:"raw" yaml:"raw"`

	// Pipeline holds configuration for transformation runs.
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Generate holds configuration for the synthetic data producer.
	Generate GenerateConfig `mapstructure:"generate" yaml:"generate"`
}

// RawConfig holds configuration for the raw record store.
type RawConfig struct {
	// Compression selects the batch file codec: none, gzip, snappy, s2,
	// zstd, or lz4.
	Compression string `mapstructure:"compression" yaml:"compression"`
}

// PipelineConfig holds configuration for transformation runs.
type PipelineConfig struct {
	// RetryAttempts is the number of attempts for transient I/O failures.
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelay is the initial backoff delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// Interval enables pulse mode: rerun the pipeline every Interval.
	// Zero means run once.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// GenerateConfig holds configuration for the synthetic data producer.
type GenerateConfig struct {
	// Transactions is the number of transactions per generated batch.
	Transactions int `mapstructure:"transactions" yaml:"transactions"`

	// Users is the size of the stable user pool.
	Users int `mapstructure:"users" yaml:"users"`

	// Products is the size of the stable product pool.
	Products int `mapstructure:"products" yaml:"products"`

	// Stores is the size of the stable store pool.
	Stores int `mapstructure:"stores" yaml:"stores"`

	// Seed makes generation reproducible when non-zero.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		DataDir:     "data",
		LogLevel:    "info",
		LogEncoding: "console",
		Raw: RawConfig{
			Compression: "none",
		},
		Pipeline: PipelineConfig{
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Generate: GenerateConfig{
			Transactions: 100,
			Users:        50,
			Products:     30,
			Stores:       10,
		},
	}
}

// Load reads configuration from a YAML file and the environment.
// Config file locations (in order of precedence):
//  1. Path specified by configFile parameter
//  2. ./stratum.yaml
//  3. ~/.config/stratum/config.yaml
//
// Environment variables override file values, e.g. STRATUM_DATA_DIR.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("stratum")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "stratum"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register defaults so environment overrides apply even for keys
	// absent from the config file.
	defaults := Default()
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_encoding", defaults.LogEncoding)
	v.SetDefault("raw.compression", defaults.Raw.Compression)
	v.SetDefault("pipeline.retry_attempts", defaults.Pipeline.RetryAttempts)
	v.SetDefault("pipeline.retry_delay", defaults.Pipeline.RetryDelay)
	v.SetDefault("pipeline.interval", defaults.Pipeline.Interval)
	v.SetDefault("generate.transactions", defaults.Generate.Transactions)
	v.SetDefault("generate.users", defaults.Generate.Users)
	v.SetDefault("generate.products", defaults.Generate.Products)
	v.SetDefault("generate.stores", defaults.Generate.Stores)
	v.SetDefault("generate.seed", defaults.Generate.Seed)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "error reading config file")
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "error parsing config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New(errors.ErrorTypeConfig, "data_dir is required")
	}
	switch c.Raw.Compression {
	case "", "none", "gzip", "snappy", "s2", "zstd", "lz4":
	default:
		return errors.New(errors.ErrorTypeConfig, "unknown raw compression codec").
			WithDetail("codec", c.Raw.Compression)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "pipeline retry_attempts must be at least 1")
	}
	if c.Generate.Transactions < 1 {
		return errors.New(errors.ErrorTypeConfig, "generate transactions must be at least 1")
	}
	return nil
}

// BronzeDir returns the raw tier directory.
func (c *Config) BronzeDir() string { return filepath.Join(c.DataDir, "bronze") }

// SilverDir returns the refined tier directory.
func (c *Config) SilverDir() string { return filepath.Join(c.DataDir, "silver") }

// GoldDir returns the warehouse tier directory.
func (c *Config) GoldDir() string { return filepath.Join(c.DataDir, "gold") }

// LockPath returns the exclusive run lock file path.
func (c *Config) LockPath() string { return filepath.Join(c.DataDir, "stratum.lock") }
