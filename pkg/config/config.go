package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration for the memhub daemon. Loaded from a
// YAML file; a handful of environment variables override file values so
// containerized deployments don't need a mounted config.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Registry  RegistryConfig  `yaml:"registry"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the record store backend.
type DatabaseConfig struct {
	Type string `yaml:"type"` // "sqlite" or "postgres"
	Path string `yaml:"path"` // sqlite file path
	DSN  string `yaml:"dsn"`  // postgres DSN
}

// RegistryConfig points at the project registry file. Projects listed there
// are the only scopes the API accepts; the file is watched for changes.
type RegistryConfig struct {
	Path     string   `yaml:"path"`
	Projects []string `yaml:"projects"` // inline seed, used when no file is given
	Watch    bool     `yaml:"watch"`
}

// AuthConfig configures optional bearer-token auth on mutating endpoints.
type AuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// EventsConfig configures the NATS event publisher.
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream_name"`
}

// CacheConfig configures the read-path response cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"` // "memory" or "redis"
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         3022,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "data/memhub.db",
		},
		Registry: RegistryConfig{
			Projects: []string{"vault-2"},
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			StreamName: "MEMHUB",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     30 * time.Second,
		},
	}
}

// LoadFromFile reads a YAML config file and applies environment overrides.
// A missing file is not an error; defaults are used.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMHUB_DB_PATH"); v != "" {
		cfg.Database.Type = "sqlite"
		cfg.Database.Path = v
	}
	if v := os.Getenv("MEMHUB_DB_DSN"); v != "" {
		cfg.Database.Type = "postgres"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MEMHUB_API_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MEMHUB_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MEMHUB_JWT_SECRET"); v != "" {
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("MEMHUB_NATS_URL"); v != "" {
		cfg.Events.Enabled = true
		cfg.Events.URL = v
	}
	if v := os.Getenv("MEMHUB_REDIS_URL"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("MEMHUB_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}
