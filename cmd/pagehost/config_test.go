package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/pagehost/internal/core/dns"
	"github.com/artpar/pagehost/internal/core/edge"
	"github.com/artpar/pagehost/internal/shell/registrar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/pagehost.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, edge.DefaultProtectedPrefixes, cfg.Pages.ProtectedPrefixes)
	assert.Equal(t, "/sign-in", cfg.Pages.SignInURL)
	assert.False(t, cfg.Pages.StrictDomainOwnership)
	assert.Equal(t, 10*time.Second, cfg.Pages.StepTimeout)

	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 3*time.Second, cfg.Redis.ReadTimeout)

	assert.Equal(t, registrar.DefaultBaseURL, cfg.Registrar.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Registrar.Timeout)
	assert.Equal(t, dns.DefaultTargets(), cfg.Registrar.Targets())

	assert.Equal(t, "__session", cfg.Auth.CookieName)
	assert.Equal(t, 512, cfg.Revalidate.CacheSize)
	assert.Empty(t, cfg.Blob.Bucket)
	assert.Equal(t, 15*time.Minute, cfg.Blob.PresignTTL)

	assert.True(t, cfg.Reconciler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 4, cfg.Reconciler.MaxConcurrent)

	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

pages:
  app_host: "app.example.com"
  base_host: "example.site"
  preview_hosts: ["*.preview.example.com"]
  strict_domain_ownership: true

registrar:
  token: "tok"
  project_id: "prj_1"
  team_id: "team_1"
  timeout: 5s
  cname_target: "cname.example.net."

reconciler:
  enabled: false
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)

	rules := cfg.Pages.EdgeRules()
	assert.Equal(t, "app.example.com", rules.AppHost)
	assert.Equal(t, "example.site", rules.PagesBaseHost)
	assert.Equal(t, []string{"*.preview.example.com"}, rules.PreviewHosts)
	assert.True(t, cfg.Pages.StrictDomainOwnership)

	assert.Equal(t, "tok", cfg.Registrar.Token)
	assert.Equal(t, "prj_1", cfg.Registrar.ProjectID)
	assert.Equal(t, "team_1", cfg.Registrar.TeamID)
	assert.Equal(t, 5*time.Second, cfg.Registrar.Timeout)
	targets := cfg.Registrar.Targets()
	assert.Equal(t, "cname.example.net.", targets.CNAME)
	assert.Equal(t, dns.DefaultApexTarget, targets.A)

	assert.False(t, cfg.Reconciler.Enabled)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("PAGEHOST_SERVER_PORT", "3000")
	t.Setenv("PAGEHOST_DATABASE_DSN", "/custom/path.db")
	t.Setenv("PAGEHOST_LOG_LEVEL", "warn")
	t.Setenv("PAGEHOST_REDIS_ADDRESS", "redis:6380")
	t.Setenv("PAGEHOST_AUTH_SESSION_SECRET", "s3cret")
	t.Setenv("PAGEHOST_REVALIDATE_SECRET", "hook")
	t.Setenv("PAGEHOST_BLOB_BUCKET", "assets")
	t.Setenv("PAGEHOST_RATELIMIT_RPS", "0.5")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "redis:6380", cfg.Redis.Address)
	assert.Equal(t, "s3cret", cfg.Auth.SessionSecret)
	assert.Equal(t, "hook", cfg.Revalidate.Secret)
	assert.Equal(t, "assets", cfg.Blob.Bucket)
	assert.Equal(t, 0.5, cfg.RateLimit.RPS)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"no redis", func(c *Config) { c.Redis.Address = "" }, "redis.address"},
		{"no app host", func(c *Config) { c.Pages.AppHost = "" }, "pages.app_host"},
		{"negative cache", func(c *Config) { c.Revalidate.CacheSize = -1 }, "cache_size"},
		{"negative rate", func(c *Config) { c.RateLimit.RPS = -1 }, "ratelimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "invalid"} {
		for _, format := range []string{"json", "text"} {
			cfg := &Config{Log: LogConfig{Level: level, Format: format}}
			assert.NotNil(t, SetupLogger(cfg), level+"/"+format)
		}
	}
}

func TestSetupLogger_LevelFiltering(t *testing.T) {
	logger := SetupLogger(&Config{Log: LogConfig{Level: "warn"}})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

// =============================================================================
// Server Error Tests
// =============================================================================

func TestServerError(t *testing.T) {
	inner := os.ErrNotExist
	err := &ServerError{Op: "NewServer", Err: inner, ExitCode: ExitDatabaseError}

	assert.Equal(t, "NewServer: "+inner.Error(), err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// Helpers
// =============================================================================

// clearEnv unsets every PAGEHOST_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "PAGEHOST_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
