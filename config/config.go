// Package config loads portwatch settings from defaults, an optional YAML
// file, a .env file and PORTWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PORTWATCH_SERVER_ADDR for server.addr.
const EnvPrefix = "PORTWATCH"

// Config is the validated application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Export  ExportConfig  `mapstructure:"export"`
	Scanner ScannerConfig `mapstructure:"scanner"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the number of requests a client may send per RateWindow.
	// Zero disables rate limiting. Requires Redis.
	RateLimit  int64         `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig locates the export history store.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig controls where artifacts are written.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScannerConfig holds the probe defaults.
type ScannerConfig struct {
	Mode           string        `mapstructure:"mode"`
	ProbesFile     string        `mapstructure:"probes_file"`
	DefaultWorkers int           `mapstructure:"default_workers"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("export.dir", "exports")

	v.SetDefault("scanner.mode", "connect")
	v.SetDefault("scanner.probes_file", "")
	v.SetDefault("scanner.default_workers", 10)
	v.SetDefault("scanner.max_workers", 0)
	v.SetDefault("scanner.timeout", time.Second)
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return cfg
}

// Load reads .env from the working directory, then the YAML file at path
// (or ./portwatch.yaml when path is empty and the file exists), then the
// environment. flags maps config keys to command-line flags; a flag only
// overrides when it was set explicitly.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("redis.addr", EnvPrefix+"_REDIS_ADDR", "REDIS_ADDR"); err != nil {
		return nil, err
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("portwatch")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Scanner.Mode = strings.ToLower(strings.TrimSpace(c.Scanner.Mode))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Server.RateLimit > 0 {
		if !c.Redis.Enabled {
			return fmt.Errorf("rate limiting requires redis")
		}
		if c.Server.RateWindow <= 0 {
			return fmt.Errorf("rate window must be positive")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export directory is required")
	}

	validModes := map[string]bool{"connect": true, "udp": true}
	if !validModes[c.Scanner.Mode] {
		return fmt.Errorf("invalid scanner mode: %s", c.Scanner.Mode)
	}
	if c.Scanner.DefaultWorkers < 0 {
		return fmt.Errorf("default workers must not be negative")
	}
	if c.Scanner.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative")
	}
	if c.Scanner.Timeout <= 0 {
		return fmt.Errorf("scanner timeout must be positive")
	}
	return nil
}
