package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-carbonform/pkg/schema"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Schema.Source)
	assert.Equal(t, schema.DefaultTTL, cfg.SchemaTTL())
	assert.Equal(t, 2, cfg.Backend.Retries)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carbonform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
schema:
  source: url
  location: https://config.example.com/v1
  ttl: 1m
backend:
  base_url: https://calc.example.com
  retries: 0
  endpoints:
    fuel: /api/fuel/calculate
logging:
  level: debug
  format: console
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.SchemaTTL())
	assert.Equal(t, 0, cfg.Backend.Retries)
	assert.Equal(t, "/api/fuel/calculate", cfg.Backend.Endpoints["fuel"])
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched keys keep their defaults
	assert.Equal(t, "250ms", cfg.Backend.Backoff)

	src, err := cfg.SchemaSource()
	require.NoError(t, err)
	assert.Equal(t, schema.SourceKindURL, src.Kind())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CARBONFORM_ADDR", ":7000")
	t.Setenv("CARBONFORM_SCHEMA_SOURCE", "sqlite")
	t.Setenv("CARBONFORM_SCHEMA_LOCATION", "/tmp/carbon.db")
	t.Setenv("CARBONFORM_BACKEND_RETRIES", "5")
	t.Setenv("CARBONFORM_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Schema.Source)
	assert.Equal(t, 5, cfg.Backend.Retries)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("retries env", func(t *testing.T) {
		t.Setenv("CARBONFORM_BACKEND_RETRIES", "many")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv("CARBONFORM_BACKEND_TIMEOUT", "soon")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.timeout")
	})

	t.Run("source kind", func(t *testing.T) {
		t.Setenv("CARBONFORM_SCHEMA_SOURCE", "ftp")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carbonform.yaml")
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://calc.example.com"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://calc.example.com", loaded.Backend.BaseURL)
}
