// Package config loads the server configuration from an optional TOML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Redis     RedisConfig     `toml:"redis"`
	Database  DatabaseConfig  `toml:"database"`
	Completer CompleterConfig `toml:"completer"`
	Jobs      JobsConfig      `toml:"jobs"`
	Ingest    IngestConfig    `toml:"ingest"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RedisConfig points at the attempt cache. An empty Addr selects the
// in-process cache instead.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// DatabaseConfig selects the job store backend. Driver is one of
// "postgres", "sqlite" or "memory".
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	// URL is the postgres connection string.
	URL string `toml:"url"`
	// Path is the sqlite database file.
	Path string `toml:"path"`
}

type CompleterConfig struct {
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type JobsConfig struct {
	TimeoutSeconds      int `toml:"timeout_seconds"`
	Concurrency         int `toml:"concurrency"`
	MaxTransientRetries int `toml:"max_transient_retries"`
}

// IngestConfig enables the directory watcher when Dir is set.
type IngestConfig struct {
	Dir        string `toml:"dir"`
	DebounceMS int    `toml:"debounce_ms"`
}

// Default returns the configuration used when no file and no
// environment overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "protex.db",
		},
		Completer: CompleterConfig{
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 5,
		},
		Jobs: JobsConfig{
			TimeoutSeconds: 300,
			Concurrency:    4,
		},
		Ingest: IngestConfig{DebounceMS: 500},
	}
}

// Load builds the configuration: defaults, then the TOML file at path
// (skipped when path is empty or the file does not exist), then
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Absent file falls through to defaults plus env.
		default:
			return Config{}, err
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("PROTEX_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PROTEX_PORT", c.Server.Port)

	c.Redis.Addr = getEnv("PROTEX_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("PROTEX_REDIS_PASSWORD", c.Redis.Password)

	c.Database.Driver = getEnv("PROTEX_DB_DRIVER", c.Database.Driver)
	c.Database.URL = getEnv("PROTEX_DB_URL", c.Database.URL)
	c.Database.Path = getEnv("PROTEX_DB_PATH", c.Database.Path)

	c.Completer.APIKey = getEnv("PROTEX_OPENAI_API_KEY", c.Completer.APIKey)
	c.Completer.Model = getEnv("PROTEX_OPENAI_MODEL", c.Completer.Model)
	c.Completer.BaseURL = getEnv("PROTEX_OPENAI_BASE_URL", c.Completer.BaseURL)

	c.Jobs.TimeoutSeconds = getEnvInt("PROTEX_JOB_TIMEOUT_SEC", c.Jobs.TimeoutSeconds)
	c.Jobs.Concurrency = getEnvInt("PROTEX_JOB_CONCURRENCY", c.Jobs.Concurrency)

	c.Ingest.Dir = getEnv("PROTEX_INGEST_DIR", c.Ingest.Dir)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database driver %q requires database.url", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database driver %q requires database.path", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be at least 1")
	}
	return nil
}

// JobTimeout returns the configured job deadline as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

// IngestDebounce returns the configured watcher debounce window.
func (c *Config) IngestDebounce() time.Duration {
	return time.Duration(c.Ingest.DebounceMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
