package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envKeys are the scalar settings overridable from the environment.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"logging.no_color",
	"logging.caller",
	"limiter.idle_ttl",
	"limiter.sweep_interval",
	"retry.max_attempts",
	"retry.base_delay",
	"retry.max_delay",
	"retry.jitter_ratio",
	"queue.dir",
}

// LoaderOption customizes Load.
type LoaderOption func(*loaderConfig)

type loaderConfig struct {
	configFile string
	envFile    string
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// Load reads configuration from a YAML file and the environment.
//
// Without an explicit path it searches ./config.yml and
// ./config/config.yml. A .env file, when found, is loaded before
// environment binding. Missing files are not an error; the returned
// config is defaulted and validated either way. Environment variables
// use underscore-nested keys, e.g. RESILIENCE_LOGGING_LEVEL.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile == "" {
		lc.envFile = firstExisting(".env")
	}
	if lc.envFile != "" {
		if err := godotenv.Load(lc.envFile); err != nil {
			fmt.Fprintf(os.Stderr, "[config] warning: failed to load env file %s: %v\n", lc.envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("RESILIENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if lc.configFile == "" {
		lc.configFile = firstExisting("config.yml", "config/config.yml")
	}
	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", lc.configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func firstExisting(paths ...string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
