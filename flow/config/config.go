// Package config loads the tunables of the flow packages from a config file,
// a .env file and FLOW_* environment variables, and attaches them to a
// context where the combinators pick them up.
//
// Precedence, lowest first: built-in defaults, the config file, then the
// environment (a .env file only fills variables that are not already set).
//
//	FLOW_LOG_LEVEL=debug
//	FLOW_RETRY_LIMIT=3
//	FLOW_FORK_HIGH_WATER_MARK=128
//	FLOW_STORE_POLL_INTERVAL=50ms
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lguimbarda/deferflow/flow/combine"
	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/flowerrors"
	"github.com/lguimbarda/deferflow/flow/store"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "FLOW"

// Config gathers the settings of every configurable package.
type Config struct {
	Log   LogConfig                `mapstructure:"log"`
	Fork  combine.ForkConfig       `mapstructure:"fork"`
	Retry flowerrors.BackoffConfig `mapstructure:"retry"`
	Store store.Config             `mapstructure:"store"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "json"},
		Fork:  combine.DefaultForkConfig(),
		Retry: flowerrors.DefaultBackoffConfig(),
		Store: store.DefaultConfig(),
	}
}

// ApplyDefaults fills zero values that have no meaningful zero setting.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Fork.ApplyDefaults()
	c.Store.ApplyDefaults()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by c.Log, writing to w.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Context attaches a stderr logger and every package configuration to ctx.
func (c *Config) Context(ctx context.Context) context.Context {
	logger := c.Logger(os.Stderr)
	ctx = logger.WithContext(ctx)

	fork := c.Fork
	retry := c.Retry
	st := c.Store
	ctx = core.WithConfig(ctx, &fork)
	ctx = core.WithConfig(ctx, &retry)
	ctx = core.WithConfig(ctx, &st)
	return ctx
}

type loaderConfig struct {
	configFile string
	envFile    string
}

// LoaderOption configures Load.
type LoaderOption func(*loaderConfig)

// WithConfigFile reads settings from a YAML, JSON or TOML file.
func WithConfigFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile loads a .env file into the environment before reading it.
func WithEnvFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// Load reads, defaults and validates the configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile != "" {
		if err := godotenv.Load(lc.envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", lc.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", lc.configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("fork.high_water_mark", d.Fork.HighWaterMark)
	v.SetDefault("fork.throttle_interval", d.Fork.ThrottleInterval)

	v.SetDefault("retry.strategy", d.Retry.Strategy)
	v.SetDefault("retry.unit", d.Retry.Unit)
	v.SetDefault("retry.exponent", d.Retry.Exponent)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.jitter", d.Retry.Jitter)
	v.SetDefault("retry.limit", d.Retry.Limit)

	v.SetDefault("store.poll_interval", d.Store.PollInterval)
}
