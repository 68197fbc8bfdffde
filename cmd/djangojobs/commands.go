package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"djangojobs/internal/config"
	"djangojobs/internal/events"
	"djangojobs/internal/fetch"
	"djangojobs/internal/httpapi"
	"djangojobs/internal/logging"
	"djangojobs/internal/pipeline"
	"djangojobs/internal/scheduler"
	"djangojobs/internal/scrape"
	"djangojobs/internal/scrape/builtwithdjango"
	"djangojobs/internal/scrape/pythonorg"
	"djangojobs/internal/store"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// loadConfig layers defaults, the YAML file, the env file, DJANGOJOBS_*
// variables and finally explicit flags.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	if err := config.LoadEnvFile(cmd.String("env")); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	if err := config.OverlayEnv(&cfg); err != nil {
		return cfg, err
	}

	set := func(flag string, dst *string) {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	set("json-output", &cfg.Output.JSONPath)
	set("rss-output", &cfg.Output.RSSPath)
	set("history-db", &cfg.Output.HistoryDB)
	set("log-level", &cfg.Log.Level)
	set("log-format", &cfg.Log.Format)
	set("cron", &cfg.Schedule.Cron)
	set("listen", &cfg.Server.Listen)
	if cmd.IsSet("allow-partial") {
		cfg.Fetch.AllowPartial = cmd.Bool("allow-partial")
	}
	if cmd.IsSet("grace-hours") {
		cfg.Reconcile.GraceHours = cmd.Int("grace-hours")
	}

	return cfg, config.Validate(cfg)
}

type app struct {
	runner  *pipeline.Runner
	history *store.DB
}

func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}

func newApp(ctx context.Context, cfg config.Config, lg *slog.Logger) (*app, error) {
	f := fetch.New(fetch.Options{
		Timeout:           cfg.Timeout(),
		MaxRetries:        cfg.Fetch.MaxRetries,
		InitialBackoff:    cfg.Backoff(),
		MaxBackoff:        cfg.MaxBackoff(),
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		Workers:           cfg.Fetch.Workers,
		Logger:            lg,
	})

	a := &app{runner: &pipeline.Runner{
		Config:  cfg,
		Fetcher: f,
		Sources: sources(cfg, lg),
		Writer:  pipeline.FileWriter{},
		Clock:   time.Now,
		Logger:  lg,
	}}

	if cfg.Output.HistoryDB != "" {
		db, err := store.Open(ctx, cfg.Output.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = db
		a.runner.History = db
	}
	return a, nil
}

func sources(cfg config.Config, lg *slog.Logger) []scrape.Source {
	var out []scrape.Source
	if s := cfg.Sources.PythonOrg; s.Enabled {
		out = append(out, pythonorg.New(pythonorg.Config{
			Endpoint: s.URL,
			Keyword:  cfg.Parse.Keyword,
			Workers:  cfg.Fetch.Workers,
		}, lg))
	}
	if s := cfg.Sources.BuiltWithDjango; s.Enabled {
		out = append(out, builtwithdjango.New(builtwithdjango.Config{
			Endpoint:   s.URL,
			Workers:    cfg.Fetch.Workers,
			AllowEmpty: cfg.Parse.AllowEmpty,
		}, lg))
	}
	return out
}

func setup(ctx context.Context, cmd *cli.Command) (*app, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	lg, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	return a, lg, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	a, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func scheduleAction(ctx context.Context, cmd *cli.Command) error {
	a, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.runner.Config

	hub := events.NewHub()
	tracker := httpapi.NewTracker(a.runner.Run, hub, lg)
	task := func(ctx context.Context) error {
		err := tracker.Run(ctx, "")
		if errors.Is(err, httpapi.ErrBusy) {
			lg.Warn("previous run still in progress, skipping tick")
			return nil
		}
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Cron(ctx, cfg.Schedule.Cron, "feed", task,
			scheduler.Options{RunNow: cmd.Bool("run-now"), Logger: lg})
	})
	if cfg.Server.Listen != "" {
		d := httpapi.Deps{
			Hub:      hub,
			Tracker:  tracker,
			JSONPath: cfg.Output.JSONPath,
			RSSPath:  cfg.Output.RSSPath,
			Logger:   lg,
		}
		if a.history != nil {
			d.DB = a.history.Pool
		}
		g.Go(func() error {
			return httpapi.Serve(ctx, cfg.Server.Listen, httpapi.NewHandler(ctx, d), lg)
		})
	}
	err = g.Wait()
	tracker.Wait()
	return err
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Output.HistoryDB == "" {
		return fmt.Errorf("no history database configured (set output.history_db or --history-db)")
	}
	db, err := store.Open(ctx, cfg.Output.HistoryDB)
	if err != nil {
		return err
	}
	defer db.Close()

	if days := cmd.Int("prune-days"); days > 0 {
		n, err := store.CleanupOldRuns(ctx, db.Pool, time.Now().AddDate(0, 0, -int(days)))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "pruned %d run(s)\n", n)
	}

	runs, err := store.ListRuns(ctx, db.Pool, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-6s jobs=%d +%d ~%d =%d retained=%d -%d skipped=%d %s\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Status, r.Records,
			r.Changes.Added, r.Changes.Updated, r.Changes.Unchanged, r.Changes.Retained, r.Changes.Removed,
			r.Skipped, r.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
