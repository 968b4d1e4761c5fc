package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 6999, cfg.Port)
	assert.Equal(t, "opcron.db", cfg.Database.Path)
	assert.Equal(t, 60*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, 365*24*time.Hour, cfg.Auth.KeepLoggedIn)
	assert.Equal(t, "opcron_token", cfg.Auth.CookieName)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Tick)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.JobTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 127.0.0.1
port: 8080
database:
  path: /var/lib/opcron/opcron.db
rate_limit:
  requests_per_second: 2
  burst: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/var/lib/opcron/opcron.db", cfg.Database.Path)
	assert.Equal(t, 2.0, cfg.RateLimit.RequestsPerSecond)
	// Unset sections still default.
	assert.Equal(t, 60*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, "opcron_token", cfg.Auth.CookieName)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Tick)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 700000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scheduler.Tick = 100 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SMTP.Host = "smtp.example.com"
	assert.Error(t, cfg.Validate()) // port unset

	cfg.SMTP.Port = 587
	assert.NoError(t, cfg.Validate())
}
