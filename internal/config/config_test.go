package config

import (
	"os"
	"path/filepath"
	"testing"

	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "https://app.example.com/api"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/api", cfg.Backend.BaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Server.Token)
	assert.Equal(t, 1.0, cfg.Run.DelaySeconds)
	assert.Equal(t, 2, cfg.Run.Concurrency)
	assert.True(t, cfg.Run.UnfulfilledOnly)
	assert.Equal(t, 100, cfg.Run.LargeBatchThreshold)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, int64(10000), cfg.Redis.StreamMaxLen)
}

func TestLoadFileClampsRunBounds(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "https://app.example.com/api"
run:
  delay_seconds: 500
  concurrency: 0
  large_batch_delay_seconds: 0
  large_batch_concurrency: 42
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, domain.MaxDelaySeconds, cfg.Run.DelaySeconds)
	assert.Equal(t, domain.MinConcurrency, cfg.Run.Concurrency)
	assert.Equal(t, domain.MinDelaySeconds, cfg.Run.LargeBatchDelaySeconds)
	assert.Equal(t, domain.MaxConcurrency, cfg.Run.LargeBatchConcurrency)
}

func TestLoadFileScraperProfiles(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "https://app.example.com/api"
scraper:
  enabled: true
  proxies: ["http://10.0.0.1:3128"]
  profiles:
    other:
      url_template: "https://track.example.com/orders/%s"
      status_selector: ".order-status"
      tracking_selector: ".tracking-number"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Contains(t, cfg.Scraper.Profiles, "other")
	assert.Equal(t, ".order-status", cfg.Scraper.Profiles["other"].StatusSelector)
	assert.Equal(t, []string{"http://10.0.0.1:3128"}, cfg.Scraper.Proxies)
}

func TestLoadFileRequiresBackend(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "hist", User: "u", Password: "p"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=hist sslmode=disable", d.DSN())
}
