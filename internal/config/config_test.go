package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"layanan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("LAYANAN_API_TOKEN", "secret")
	path := writeConfig(t, `
app:
  name: layanan-test
api:
  base_url: "https://api.example.com/v1/"
  token: "${LAYANAN_API_TOKEN}"
  timeout: 3s
storage:
  backend: memory
lifecycle:
  poll_interval: 15s
dispatch:
  kafka:
    brokers: ["localhost:9092"]
    topic: mitra-locations
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Lifecycle.PollInterval)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Dispatch.Kafka.Brokers)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "http://localhost:8000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "layanan", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "data/layanan.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, models.DefaultPollInterval*time.Second, cfg.Lifecycle.PollInterval)
	assert.Equal(t, models.DefaultSearchAnimation*time.Second, cfg.Matching.ProgressDuration)
	assert.Equal(t, models.DefaultLatitude, cfg.Dispatch.DefaultLatitude)
	assert.Equal(t, models.DefaultLongitude, cfg.Dispatch.DefaultLongitude)
	assert.Equal(t, 3, cfg.Dispatch.StartRetries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{API: APIConfig{BaseURL: "http://localhost"}, Storage: StorageConfig{Backend: "memory"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "api/v1" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "etcd" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Storage.Backend = "redis" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.Storage.Backend = "sqlite"
			c.Database.Path = ""
		}, wantErr: true},
		{name: "poll interval too small", mutate: func(c *Config) { c.Lifecycle.PollInterval = time.Millisecond }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *Config) { c.Dispatch.Kafka.Brokers = []string{"b:9092"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
