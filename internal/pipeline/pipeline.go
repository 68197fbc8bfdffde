// Package pipeline sequences one extraction run: load the previous feed,
// collect, reconcile, render and hand the documents to a Writer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"djangojobs/internal/config"
	"djangojobs/internal/domain"
	"djangojobs/internal/feed"
	"djangojobs/internal/reconcile"
	"djangojobs/internal/scrape"
	"djangojobs/internal/store"

	"github.com/google/uuid"
)

// History records finished runs. Failures here never fail the run.
type History interface {
	RecordRun(ctx context.Context, r store.Run) (uuid.UUID, error)
	RecordSightings(ctx context.Context, jobs []domain.JobRecord, now time.Time) error
}

// companySites is implemented by *store.DB.
type companySites interface {
	FillCompanySites(ctx context.Context, jobs []domain.JobRecord, now time.Time) ([]domain.JobRecord, int, error)
}

type Runner struct {
	Config  config.Config
	Fetcher scrape.PageFetcher
	Sources []scrape.Source
	Writer  Writer
	History History // optional
	Clock   func() time.Time
	Logger  *slog.Logger
}

type Report struct {
	RunID       string               `json:"run_id,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
	Records     int                  `json:"records"`
	Skipped     int                  `json:"skipped"`
	Duplicates  int                  `json:"duplicates_removed"`
	Changes     domain.ChangeSummary `json:"changes"`
	Sources     []scrape.SourceCount `json:"sources"`
	Written     []string             `json:"written"`
}

// Run performs one extraction. A fetch or parse failure returns before the
// Writer is called, so existing outputs stay as they were.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	lg := r.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "pipeline")

	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	started := clock()
	now := started.UTC().Truncate(time.Second)
	cfg := r.Config

	prev, err := feed.LoadPrevious(cfg.Output.JSONPath, lg)
	if err != nil {
		return Report{}, err
	}
	if prev == nil {
		lg.Info("no previous feed, cold start", "path", cfg.Output.JSONPath)
	} else {
		lg.Info("loaded previous feed", "path", cfg.Output.JSONPath, "jobs", len(prev.Jobs))
	}

	res, err := scrape.Collect(ctx, r.Sources, r.Fetcher, scrape.Options{
		AllowPartial: cfg.Fetch.AllowPartial,
		MaxSkipRatio: cfg.Parse.MaxSkipRatio,
		Logger:       r.Logger,
	})
	if err != nil {
		r.recordFailure(ctx, lg, started, clock(), err)
		return Report{}, err
	}

	fresh := res.Records
	if cs, ok := r.History.(companySites); ok {
		filled, n, err := cs.FillCompanySites(ctx, fresh, now)
		if err != nil {
			lg.Warn("company site cache unavailable", "err", err)
		} else {
			fresh = filled
			if n > 0 {
				lg.Info("backfilled company sites", "records", n)
			}
		}
	}

	state, changes := reconcile.Reconcile(prev, fresh, now, reconcile.Policy{Grace: cfg.Grace()})
	state.Sources = r.endpoints(res.Succeeded())

	outs, err := render(state, counts(res), changes, cfg)
	if err != nil {
		r.recordFailure(ctx, lg, started, clock(), err)
		return Report{}, err
	}

	w := r.Writer
	if w == nil {
		w = FileWriter{}
	}
	written, err := w.Write(ctx, outs)
	if err != nil {
		err = fmt.Errorf("write outputs: %w", err)
		r.recordFailure(ctx, lg, started, clock(), err)
		return Report{}, err
	}

	rep := Report{
		GeneratedAt: now,
		Records:     len(state.Jobs),
		Skipped:     len(res.Skipped),
		Duplicates:  res.Dedupe.Collapsed,
		Changes:     changes,
		Sources:     res.Sources,
		Written:     written,
	}

	if r.History != nil {
		id, err := r.History.RecordRun(ctx, store.Run{
			StartedAt:  started,
			FinishedAt: clock(),
			Status:     store.StatusOK,
			Records:    rep.Records,
			Skipped:    rep.Skipped,
			Changes:    changes,
			Sources:    sourceRuns(res.Sources),
		})
		if err != nil {
			lg.Warn("recording run history failed", "err", err)
		} else {
			rep.RunID = id.String()
		}
		if err := r.History.RecordSightings(ctx, state.Jobs, now); err != nil {
			lg.Warn("recording sightings failed", "err", err)
		}
	}

	lg.Info("run finished",
		"jobs", rep.Records,
		"changed", changes.Changed(),
		"added", changes.Added,
		"updated", changes.Updated,
		"unchanged", changes.Unchanged,
		"retained", changes.Retained,
		"removed", changes.Removed,
		"skipped", rep.Skipped,
		"written", len(written),
	)
	return rep, nil
}

func counts(res scrape.CollectResult) feed.Counts {
	c := feed.Counts{
		PerSource:         make(map[string]int, len(res.Sources)),
		InputCount:        res.Dedupe.In,
		OutputCount:       res.Dedupe.Out,
		DuplicatesRemoved: res.Dedupe.Collapsed,
		Skipped:           len(res.Skipped),
	}
	for _, s := range res.Sources {
		if s.Error == "" {
			c.PerSource[s.Source] = s.Records
		}
	}
	return c
}

func render(state domain.FeedState, cnt feed.Counts, changes domain.ChangeSummary, cfg config.Config) ([]Output, error) {
	js, err := feed.MarshalJSON(feed.Document{FeedState: state, Counts: &cnt, Changes: &changes})
	if err != nil {
		return nil, err
	}
	xs, err := feed.MarshalRSS(state, feed.Channel{
		Title:       cfg.Feed.Title,
		Link:        cfg.Feed.Link,
		Description: cfg.Feed.Description,
	})
	if err != nil {
		return nil, err
	}
	return []Output{
		{Path: cfg.Output.JSONPath, Data: js},
		{Path: cfg.Output.RSSPath, Data: xs},
	}, nil
}

// endpoints maps source names to their endpoints, keeping source order.
func (r *Runner) endpoints(names []string) []string {
	ok := make(map[string]bool, len(names))
	for _, n := range names {
		ok[n] = true
	}
	var out []string
	for _, s := range r.Sources {
		if ok[s.Name()] {
			out = append(out, s.Endpoint())
		}
	}
	return out
}

func (r *Runner) recordFailure(ctx context.Context, lg *slog.Logger, started, finished time.Time, cause error) {
	lg.Error("run failed, outputs left untouched", "err", cause)
	if r.History == nil {
		return
	}
	if _, err := r.History.RecordRun(ctx, store.Run{
		StartedAt:  started,
		FinishedAt: finished,
		Status:     store.StatusFailed,
		Error:      cause.Error(),
	}); err != nil {
		lg.Warn("recording run history failed", "err", err)
	}
}

func sourceRuns(in []scrape.SourceCount) []store.SourceRun {
	out := make([]store.SourceRun, 0, len(in))
	for _, s := range in {
		out = append(out, store.SourceRun{
			Source:  s.Source,
			Records: s.Records,
			Skipped: s.Skipped,
			Total:   s.Total,
			Error:   s.Error,
		})
	}
	return out
}
