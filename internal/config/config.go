// Package config loads the carbonform YAML configuration and applies
// CARBONFORM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-carbonform/pkg/factors"
	"github.com/goliatone/go-carbonform/pkg/schema"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Schema  SchemaConfig  `yaml:"schema"`
	Factors FactorsConfig `yaml:"factors"`
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// SchemaConfig selects the document store and the schema document.
type SchemaConfig struct {
	Source         string `yaml:"source"`   // file, url, sqlite
	Location       string `yaml:"location"` // directory, base url or database path
	Path           string `yaml:"path"`
	TTL            string `yaml:"ttl"`
	PollInterval   string `yaml:"poll_interval"`
	RequestTimeout string `yaml:"request_timeout"`
}

// FactorsConfig locates the emission factor document.
type FactorsConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig configures the calculation client.
type BackendConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Timeout   string            `yaml:"timeout"`
	Retries   int               `yaml:"retries"`
	Backoff   string            `yaml:"backoff"`
	Endpoints map[string]string `yaml:"endpoints"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "10s",
		},
		Schema: SchemaConfig{
			Source:         string(schema.SourceKindFile),
			Location:       "./data",
			Path:           schema.DefaultPath,
			TTL:            schema.DefaultTTL.String(),
			PollInterval:   "30s",
			RequestTimeout: "10s",
		},
		Factors: FactorsConfig{
			Path: factors.DefaultPath,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "30s",
			Retries: 2,
			Backoff: "250ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"CARBONFORM_ADDR":            &c.Server.Addr,
		"CARBONFORM_SCHEMA_SOURCE":   &c.Schema.Source,
		"CARBONFORM_SCHEMA_LOCATION": &c.Schema.Location,
		"CARBONFORM_SCHEMA_PATH":     &c.Schema.Path,
		"CARBONFORM_SCHEMA_TTL":      &c.Schema.TTL,
		"CARBONFORM_FACTORS_PATH":    &c.Factors.Path,
		"CARBONFORM_BACKEND_URL":     &c.Backend.BaseURL,
		"CARBONFORM_BACKEND_TIMEOUT": &c.Backend.Timeout,
		"CARBONFORM_LOG_LEVEL":       &c.Logging.Level,
		"CARBONFORM_LOG_FORMAT":      &c.Logging.Format,
	}
	for name, target := range strs {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*target = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CARBONFORM_BACKEND_RETRIES")); raw != "" {
		retries, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: CARBONFORM_BACKEND_RETRIES: %w", err)
		}
		c.Backend.Retries = retries
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.SchemaSource(); err != nil {
		return err
	}
	if c.Backend.Retries < 0 {
		return errors.New("config: backend.retries must not be negative")
	}
	for name, raw := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"schema.ttl":              c.Schema.TTL,
		"schema.poll_interval":    c.Schema.PollInterval,
		"schema.request_timeout":  c.Schema.RequestTimeout,
		"backend.timeout":         c.Backend.Timeout,
		"backend.backoff":         c.Backend.Backoff,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// SchemaSource resolves the configured document store.
func (c *Config) SchemaSource() (schema.Source, error) {
	src, err := schema.ParseSource(c.Schema.Source, c.Schema.Location)
	if err != nil {
		return nil, fmt.Errorf("config: schema source: %w", err)
	}
	return src, nil
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return d
}

// SchemaTTL returns the schema cache TTL.
func (c *Config) SchemaTTL() time.Duration { return duration(c.Schema.TTL, schema.DefaultTTL) }

// PollInterval returns the polling interval for polling stores.
func (c *Config) PollInterval() time.Duration { return duration(c.Schema.PollInterval, 30*time.Second) }

// StoreTimeout returns the per-request document store timeout.
func (c *Config) StoreTimeout() time.Duration {
	return duration(c.Schema.RequestTimeout, 10*time.Second)
}

// BackendTimeout returns the per-attempt calculation timeout.
func (c *Config) BackendTimeout() time.Duration { return duration(c.Backend.Timeout, 30*time.Second) }

// BackendBackoff returns the retry backoff base.
func (c *Config) BackendBackoff() time.Duration {
	return duration(c.Backend.Backoff, 250*time.Millisecond)
}

// ReadTimeout returns the server read timeout.
func (c *Config) ReadTimeout() time.Duration { return duration(c.Server.ReadTimeout, 15*time.Second) }

// WriteTimeout returns the server write timeout.
func (c *Config) WriteTimeout() time.Duration { return duration(c.Server.WriteTimeout, 60*time.Second) }

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}
