package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, Validate(cfg))
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
output:
  json_path: out/feed.json
reconcile:
  grace_hours: 24
sources:
  builtwithdjango:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "out/feed.json", cfg.Output.JSONPath)
	assert.Equal(t, "django_jobs_feed.xml", cfg.Output.RSSPath)
	assert.Equal(t, 24*time.Hour, cfg.Grace())
	assert.False(t, cfg.Sources.BuiltWithDjango.Enabled)
	assert.Equal(t, []string{"https://www.python.org/jobs/feed/rss/"}, cfg.SourceURLs())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults ok", mutate: func(*Config) {}},
		{
			name:    "same output paths",
			mutate:  func(c *Config) { c.Output.RSSPath = c.Output.JSONPath },
			wantErr: "must differ",
		},
		{
			name: "no sources",
			mutate: func(c *Config) {
				c.Sources.PythonOrg.Enabled = false
				c.Sources.BuiltWithDjango.Enabled = false
			},
			wantErr: "at least one source",
		},
		{
			name:    "relative source url",
			mutate:  func(c *Config) { c.Sources.PythonOrg.URL = "/jobs" },
			wantErr: "sources.python_org.url",
		},
		{
			name:    "listen without port",
			mutate:  func(c *Config) { c.Server.Listen = "localhost" },
			wantErr: "server.listen",
		},
		{name: "listen ok", mutate: func(c *Config) { c.Server.Listen = "127.0.0.1:8080" }},
		{
			name:    "skip ratio out of range",
			mutate:  func(c *Config) { c.Parse.MaxSkipRatio = 1.5 },
			wantErr: "parse.max_skip_ratio",
		},
		{
			name:    "negative grace",
			mutate:  func(c *Config) { c.Reconcile.GraceHours = -1 },
			wantErr: "reconcile.grace_hours",
		},
		{
			name:    "bad cron",
			mutate:  func(c *Config) { c.Schedule.Cron = "every day please" },
			wantErr: "schedule.cron",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOverlayEnv(t *testing.T) {
	t.Setenv("DJANGOJOBS_JSON_OUTPUT", "/tmp/a.json")
	t.Setenv("DJANGOJOBS_GRACE_HOURS", "0")
	t.Setenv("DJANGOJOBS_ALLOW_PARTIAL", "true")

	cfg := Default()
	require.NoError(t, OverlayEnv(&cfg))

	assert.Equal(t, "/tmp/a.json", cfg.Output.JSONPath)
	assert.Equal(t, time.Duration(0), cfg.Grace())
	assert.True(t, cfg.Fetch.AllowPartial)
}

func TestOverlayEnvRejectsGarbage(t *testing.T) {
	t.Setenv("DJANGOJOBS_GRACE_HOURS", "soon")

	cfg := Default()
	err := OverlayEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DJANGOJOBS_GRACE_HOURS")
	assert.Equal(t, 72, cfg.Reconcile.GraceHours)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DJANGOJOBS_TEST_ENV_FILE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DJANGOJOBS_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("DJANGOJOBS_TEST_ENV_FILE"))
}
