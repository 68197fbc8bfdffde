// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Source struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type Config struct {
	Output struct {
		JSONPath  string `yaml:"json_path"`
		RSSPath   string `yaml:"rss_path"`
		HistoryDB string `yaml:"history_db"`
	} `yaml:"output"`

	Sources struct {
		PythonOrg       Source `yaml:"python_org"`
		BuiltWithDjango Source `yaml:"builtwithdjango"`
	} `yaml:"sources"`

	Fetch struct {
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		MaxRetries        int     `yaml:"max_retries"`
		BackoffMillis     int     `yaml:"backoff_millis"`
		MaxBackoffMillis  int     `yaml:"max_backoff_millis"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		Workers           int     `yaml:"workers"`
		UserAgent         string  `yaml:"user_agent"`
		AllowPartial      bool    `yaml:"allow_partial"`
	} `yaml:"fetch"`

	Parse struct {
		Keyword      string  `yaml:"keyword"`
		MaxSkipRatio float64 `yaml:"max_skip_ratio"`
		AllowEmpty   bool    `yaml:"allow_empty"`
	} `yaml:"parse"`

	Reconcile struct {
		GraceHours int `yaml:"grace_hours"`
	} `yaml:"reconcile"`

	Feed struct {
		Title       string `yaml:"title"`
		Link        string `yaml:"link"`
		Description string `yaml:"description"`
	} `yaml:"feed"`

	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`

	// Server is the optional status endpoint used by `schedule`; empty Listen disables it.
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Output.JSONPath = "django_jobs_feed.json"
	cfg.Output.RSSPath = "django_jobs_feed.xml"

	cfg.Sources.PythonOrg = Source{Enabled: true, URL: "https://www.python.org/jobs/feed/rss/"}
	cfg.Sources.BuiltWithDjango = Source{Enabled: true, URL: "https://builtwithdjango.com/jobs/"}

	cfg.Fetch.TimeoutSeconds = 40
	cfg.Fetch.MaxRetries = 3
	cfg.Fetch.BackoffMillis = 500
	cfg.Fetch.MaxBackoffMillis = 8000
	cfg.Fetch.RequestsPerSecond = 2
	cfg.Fetch.Burst = 2
	cfg.Fetch.Workers = 4
	cfg.Fetch.UserAgent = "django-jobs-extractor/3.0"

	cfg.Parse.Keyword = "django"
	cfg.Parse.MaxSkipRatio = 0.5

	cfg.Reconcile.GraceHours = 72

	cfg.Feed.Title = "Django Jobs Unified Feed"
	cfg.Feed.Link = "https://www.python.org/jobs/"
	cfg.Feed.Description = "Unified deduplicated Django jobs feed"

	cfg.Schedule.Cron = "@daily"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c Config) Backoff() time.Duration {
	return time.Duration(c.Fetch.BackoffMillis) * time.Millisecond
}

func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.Fetch.MaxBackoffMillis) * time.Millisecond
}

func (c Config) Grace() time.Duration {
	return time.Duration(c.Reconcile.GraceHours) * time.Hour
}

// SourceURLs lists the enabled endpoints in a fixed order.
func (c Config) SourceURLs() []string {
	var out []string
	if c.Sources.PythonOrg.Enabled {
		out = append(out, c.Sources.PythonOrg.URL)
	}
	if c.Sources.BuiltWithDjango.Enabled {
		out = append(out, c.Sources.BuiltWithDjango.URL)
	}
	return out
}
