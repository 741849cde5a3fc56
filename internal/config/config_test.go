package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Extraction.MaxPages)
	assert.Equal(t, 10, cfg.Extraction.BatchSize)
	assert.Equal(t, float64(300), cfg.Extraction.DPI)
	assert.Equal(t, 100, cfg.Extraction.NativeTextThreshold)
	assert.Equal(t, 1, cfg.Extraction.Workers)
	assert.False(t, cfg.Extraction.BestEffort)
	assert.Equal(t, domain.PreprocessAdaptive, cfg.Preprocess.Method)
	assert.Equal(t, 6, cfg.OCR.PageSegMode)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, "TE", cfg.Normalize.NoiseAlphabet)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Equal(t, "none", cfg.Database.Driver)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
source:
  dir: docs
extraction:
  max_pages: 20
  batch_size: 4
  best_effort: true
preprocess:
  method: otsu
  deskew: false
ocr:
  timeout: 30s
cache:
  driver: bolt
  bolt:
    path: /tmp/x.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "docs"), cfg.Source.Dir)
	assert.Equal(t, 20, cfg.Extraction.MaxPages)
	assert.Equal(t, 4, cfg.Extraction.BatchSize)
	assert.True(t, cfg.Extraction.BestEffort)
	assert.Equal(t, domain.PreprocessOtsu, cfg.Preprocess.Method)
	assert.False(t, cfg.Preprocess.Deskew)
	assert.True(t, cfg.Preprocess.EnhanceContrast)
	assert.Equal(t, 11, cfg.Preprocess.AdaptiveBlockSize)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "bolt", cfg.Cache.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Cache.Bolt.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_PAGES", "5")
	t.Setenv("BATCH_SIZE", "2")
	t.Setenv("PREPROCESS_METHOD", "SIMPLE")
	t.Setenv("BEST_EFFORT", "true")
	t.Setenv("OCR_TIMEOUT", "15s")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/results.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Extraction.MaxPages)
	assert.Equal(t, 2, cfg.Extraction.BatchSize)
	assert.Equal(t, domain.PreprocessSimple, cfg.Preprocess.Method)
	assert.True(t, cfg.Extraction.BestEffort)
	assert.Equal(t, 15*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://cache:6379", cfg.Cache.Redis.URL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/results.db", cfg.DatabaseDSN())
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("MAX_PAGES", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.Extraction.BatchSize = 0 }},
		{"zero max pages", func(c *Config) { c.Extraction.MaxPages = 0 }},
		{"dpi too low", func(c *Config) { c.Extraction.DPI = 10 }},
		{"unknown method", func(c *Config) { c.Preprocess.Method = "blur" }},
		{"bad psm", func(c *Config) { c.OCR.PageSegMode = 42 }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad database driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"bad native reader", func(c *Config) { c.Extraction.NativeReader = "poppler" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, domain.KindConfig, domain.KindOf(err))
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/abs/docs", ResolveRelativePath("/etc/app/config.yaml", "/abs/docs"))
	assert.Equal(t, filepath.Join("/etc/app", "docs"), ResolveRelativePath("/etc/app/config.yaml", "docs"))
}
