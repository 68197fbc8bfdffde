// config/overlay.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "DJANGOJOBS_"

// LoadEnvFile loads a .env file into the process environment.
// A missing file is not an error; environment variables alone are enough.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// OverlayEnv applies DJANGOJOBS_* environment variables on top of cfg.
func OverlayEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s must be an integer, got %q", envPrefix, key, v))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s must be a boolean, got %q", envPrefix, key, v))
			return
		}
		*dst = b
	}

	str("JSON_OUTPUT", &cfg.Output.JSONPath)
	str("RSS_OUTPUT", &cfg.Output.RSSPath)
	str("HISTORY_DB", &cfg.Output.HistoryDB)
	str("USER_AGENT", &cfg.Fetch.UserAgent)
	str("CRON", &cfg.Schedule.Cron)
	str("LISTEN", &cfg.Server.Listen)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	integer("GRACE_HOURS", &cfg.Reconcile.GraceHours)
	integer("MAX_RETRIES", &cfg.Fetch.MaxRetries)
	integer("TIMEOUT_SECONDS", &cfg.Fetch.TimeoutSeconds)
	boolean("ALLOW_PARTIAL", &cfg.Fetch.AllowPartial)

	return errors.Join(errs...)
}
