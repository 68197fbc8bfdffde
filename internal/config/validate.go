package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

func Validate(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Output.JSONPath) == "" {
		errs = append(errs, "output.json_path is required")
	}
	if strings.TrimSpace(cfg.Output.RSSPath) == "" {
		errs = append(errs, "output.rss_path is required")
	}
	if cfg.Output.JSONPath != "" && cfg.Output.JSONPath == cfg.Output.RSSPath {
		errs = append(errs, "output.json_path and output.rss_path must differ")
	}

	checkSource := func(name string, s Source) {
		if !s.Enabled {
			return
		}
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("sources.%s.url must be an absolute URL, got %q", name, s.URL))
		}
	}
	checkSource("python_org", cfg.Sources.PythonOrg)
	checkSource("builtwithdjango", cfg.Sources.BuiltWithDjango)
	if !cfg.Sources.PythonOrg.Enabled && !cfg.Sources.BuiltWithDjango.Enabled {
		errs = append(errs, "at least one source must be enabled")
	}

	if cfg.Fetch.TimeoutSeconds <= 0 {
		errs = append(errs, "fetch.timeout_seconds must be > 0")
	}
	if cfg.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch.max_retries must be >= 0")
	}
	if cfg.Fetch.BackoffMillis < 0 || cfg.Fetch.MaxBackoffMillis < cfg.Fetch.BackoffMillis {
		errs = append(errs, "fetch.backoff_millis must be >= 0 and <= fetch.max_backoff_millis")
	}
	if cfg.Fetch.RequestsPerSecond <= 0 {
		errs = append(errs, "fetch.requests_per_second must be > 0")
	}
	if cfg.Fetch.Burst < 1 {
		errs = append(errs, "fetch.burst must be >= 1")
	}
	if cfg.Fetch.Workers < 1 {
		errs = append(errs, "fetch.workers must be >= 1")
	}

	if cfg.Parse.MaxSkipRatio < 0 || cfg.Parse.MaxSkipRatio > 1 {
		errs = append(errs, "parse.max_skip_ratio must be within 0..1")
	}
	if cfg.Reconcile.GraceHours < 0 {
		errs = append(errs, "reconcile.grace_hours must be >= 0")
	}

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.cron is invalid: %v", err))
		}
	}

	if l := cfg.Server.Listen; l != "" {
		if _, _, err := net.SplitHostPort(l); err != nil {
			errs = append(errs, fmt.Sprintf("server.listen must be host:port, got %q", l))
		}
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, "log.format must be text or json")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
