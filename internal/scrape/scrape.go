// Package scrape runs every configured source and turns their listings into
// one deduplicated slice of canonical records.
package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"djangojobs/internal/domain"
	"djangojobs/internal/fetch"
	"djangojobs/internal/scrape/types"
)

type (
	Source     = types.Source
	Getter     = types.Getter
	Batch      = types.Batch
	Defect     = types.Defect
	ParseError = types.ParseError
	ParseMode  = types.ParseMode
)

const (
	ModeHTML = types.ModeHTML
	ModeJSON = types.ModeJSON
	ModeXML  = types.ModeXML
)

func Mode(contentType string) ParseMode { return types.Mode(contentType) }

// PageFetcher is the part of *fetch.Fetcher that Collect needs.
type PageFetcher interface {
	Getter
	GetAll(ctx context.Context, urls []string) []fetch.Result
}

type Options struct {
	// AllowPartial keeps going when some (not all) source endpoints fail.
	AllowPartial bool
	MaxSkipRatio float64
	Logger       *slog.Logger
}

// SourceCount is the per-source line of a run report.
type SourceCount struct {
	Source  string `json:"source"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`
}

type CollectResult struct {
	Records []domain.JobRecord
	Sources []SourceCount
	Skipped []Defect
	Dedupe  DedupeStats
}

// Succeeded lists the sources that contributed a batch.
func (r CollectResult) Succeeded() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Error == "" {
			out = append(out, s.Source)
		}
	}
	return out
}

// Collect fetches every source endpoint concurrently and parses the pages.
// A *fetch.FetchError or *ParseError is returned as-is (wrapped) so callers
// can abort before anything is persisted.
func Collect(ctx context.Context, sources []Source, f PageFetcher, opts Options) (CollectResult, error) {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "scrape")

	if len(sources) == 0 {
		return CollectResult{}, fmt.Errorf("collect: no sources configured")
	}

	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.Endpoint()
	}
	results := f.GetAll(ctx, urls)
	if err := ctx.Err(); err != nil {
		return CollectResult{}, err
	}

	var (
		out      CollectResult
		all      []domain.JobRecord
		firstErr error
		ok       int
	)
	for i, src := range sources {
		res := results[i]
		if res.Err != nil {
			if !opts.AllowPartial {
				return CollectResult{}, fmt.Errorf("source %s: %w", src.Name(), res.Err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("source %s: %w", src.Name(), res.Err)
			}
			lg.Warn("source unavailable, continuing", "source", src.Name(), "err", res.Err)
			out.Sources = append(out.Sources, SourceCount{Source: src.Name(), Error: res.Err.Error()})
			continue
		}

		lg.Info("parsing", "source", src.Name(), "mode", Mode(res.Page.ContentType), "bytes", len(res.Page.Body))
		batch, err := src.Parse(ctx, res.Page, f)
		if err != nil {
			return CollectResult{}, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		if batch.Source == "" {
			batch.Source = src.Name()
		}
		if err := CheckSkipRate(batch, opts.MaxSkipRatio); err != nil {
			return CollectResult{}, err
		}
		for _, d := range batch.Skipped {
			lg.Warn("listing skipped", "source", batch.Source, "url", d.URL, "reason", d.Reason)
		}

		ok++
		all = append(all, batch.Records...)
		out.Skipped = append(out.Skipped, batch.Skipped...)
		out.Sources = append(out.Sources, SourceCount{
			Source:  batch.Source,
			Records: len(batch.Records),
			Skipped: len(batch.Skipped),
			Total:   batch.Total,
		})
		lg.Info("parsed", "source", batch.Source, "records", len(batch.Records), "skipped", len(batch.Skipped))
	}

	// An empty fresh set would expire the whole feed, so "every source down"
	// stays fatal even in partial mode.
	if ok == 0 {
		return CollectResult{}, firstErr
	}

	out.Records, out.Dedupe = Dedupe(all)
	if out.Dedupe.Collapsed > 0 {
		lg.Info("deduplicated", "in", out.Dedupe.In, "out", out.Dedupe.Out)
	}
	return out, nil
}

// CheckSkipRate fails a batch whose skipped share is strictly above maxRatio.
func CheckSkipRate(b Batch, maxRatio float64) error {
	if b.Total <= 0 || len(b.Skipped) == 0 {
		return nil
	}
	ratio := float64(len(b.Skipped)) / float64(b.Total)
	if ratio > maxRatio {
		return &ParseError{
			Source: b.Source,
			Reason: fmt.Sprintf("skipped %d of %d listings (%.0f%% > %.0f%%)", len(b.Skipped), b.Total, ratio*100, maxRatio*100),
		}
	}
	return nil
}
