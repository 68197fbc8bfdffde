package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"djangojobs/internal/config"
	"djangojobs/internal/domain"
	"djangojobs/internal/feed"
	"djangojobs/internal/fetch"
	"djangojobs/internal/scrape"
	"djangojobs/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	err error
}

func (f *stubFetcher) Get(_ context.Context, url string) (fetch.Page, error) {
	if f.err != nil {
		return fetch.Page{}, f.err
	}
	return fetch.Page{URL: url, Status: 200}, nil
}

func (f *stubFetcher) GetAll(ctx context.Context, urls []string) []fetch.Result {
	out := make([]fetch.Result, len(urls))
	for i, u := range urls {
		p, err := f.Get(ctx, u)
		out[i] = fetch.Result{URL: u, Page: p, Err: err}
	}
	return out
}

type stubSource struct {
	records []domain.JobRecord
	err     error
}

func (s *stubSource) Name() string     { return "stub" }
func (s *stubSource) Endpoint() string { return "https://jobs.example/feed" }
func (s *stubSource) Parse(context.Context, fetch.Page, scrape.Getter) (scrape.Batch, error) {
	if s.err != nil {
		return scrape.Batch{}, s.err
	}
	return scrape.Batch{Source: "stub", Records: s.records, Total: len(s.records)}, nil
}

type memHistory struct {
	runs      []store.Run
	sightings int
}

func (h *memHistory) RecordRun(_ context.Context, r store.Run) (uuid.UUID, error) {
	h.runs = append(h.runs, r)
	return uuid.New(), nil
}

func (h *memHistory) RecordSightings(_ context.Context, jobs []domain.JobRecord, _ time.Time) error {
	h.sightings += len(jobs)
	return nil
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

var t0 = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

func record(id, title string, published time.Time) domain.JobRecord {
	return domain.JobRecord{ID: id, Title: title, Company: "Acme", URL: "https://jobs.example/" + id, Source: "stub", PublishedAt: published}
}

func newRunner(t *testing.T, src *stubSource, f *stubFetcher, clock *fixedClock) (*Runner, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.JSONPath = filepath.Join(dir, "out", "feed.json")
	cfg.Output.RSSPath = filepath.Join(dir, "out", "feed.xml")
	return &Runner{
		Config:  cfg,
		Fetcher: f,
		Sources: []scrape.Source{src},
		Writer:  FileWriter{},
		Clock:   clock.Now,
	}, cfg
}

func readState(t *testing.T, path string) domain.FeedState {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	st, err := feed.ParseJSON(b)
	require.NoError(t, err)
	return st
}

func TestRunColdStartThenRerun(t *testing.T) {
	src := &stubSource{records: []domain.JobRecord{
		record("h1", "J1", t0.Add(-2*time.Hour)),
		record("h2", "J2", t0.Add(-time.Hour)),
	}}
	clock := &fixedClock{t: t0}
	r, cfg := newRunner(t, src, &stubFetcher{}, clock)
	hist := &memHistory{}
	r.History = hist

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeSummary{Added: 2}, rep.Changes)
	assert.Len(t, rep.Written, 2)
	assert.NotEmpty(t, rep.RunID)

	st := readState(t, cfg.Output.JSONPath)
	assert.Equal(t, []string{"h2", "h1"}, st.IDs())
	assert.Equal(t, []string{"https://jobs.example/feed"}, st.Sources)
	assert.Equal(t, t0, st.Jobs[0].FirstSeenAt)
	assert.FileExists(t, cfg.Output.RSSPath)

	raw, err := os.ReadFile(cfg.Output.JSONPath)
	require.NoError(t, err)
	var doc struct {
		Counts feed.Counts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, feed.Counts{PerSource: map[string]int{"stub": 2}, InputCount: 2, OutputCount: 2}, doc.Counts)

	// next day: J1 again, J2 gone, J3 new
	src.records = []domain.JobRecord{
		record("h1", "J1", t0.Add(-2*time.Hour)),
		record("h3", "J3", t0.Add(20*time.Hour)),
	}
	clock.t = t0.Add(24 * time.Hour)

	rep, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeSummary{Added: 1, Unchanged: 1, Retained: 1}, rep.Changes)

	st = readState(t, cfg.Output.JSONPath)
	assert.Equal(t, []string{"h3", "h2", "h1"}, st.IDs())
	assert.Equal(t, t0, st.Jobs[2].FirstSeenAt)
	assert.Equal(t, clock.t, st.Jobs[2].LastSeenAt)
	assert.Equal(t, t0, st.Jobs[1].LastSeenAt)

	require.Len(t, hist.runs, 2)
	assert.Equal(t, store.StatusOK, hist.runs[1].Status)
	assert.Equal(t, 2+3, hist.sightings)
}

func TestRunIsIdempotentOnDisk(t *testing.T) {
	src := &stubSource{records: []domain.JobRecord{record("h1", "J1", t0)}}
	clock := &fixedClock{t: t0}
	r, cfg := newRunner(t, src, &stubFetcher{}, clock)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.Output.JSONPath)
	require.NoError(t, err)

	// Same clock, same input: the previous feed now has h1, so the summary
	// says unchanged rather than added and the document differs once.
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(cfg.Output.JSONPath)
	require.NoError(t, err)

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	third, err := os.ReadFile(cfg.Output.JSONPath)
	require.NoError(t, err)

	assert.NotEqual(t, string(first), string(second))
	assert.Equal(t, string(second), string(third))
	assert.Empty(t, rep.Written, "byte-identical outputs are not rewritten")
}

func TestRunFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		src     *stubSource
		fetcher *stubFetcher
		check   func(t *testing.T, err error)
	}{
		{
			name:    "fetch error",
			src:     &stubSource{},
			fetcher: &stubFetcher{err: &fetch.FetchError{Source: "https://jobs.example/feed", Status: 503}},
			check: func(t *testing.T, err error) {
				var fe *fetch.FetchError
				assert.True(t, errors.As(err, &fe))
			},
		},
		{
			name:    "parse error",
			src:     &stubSource{err: &scrape.ParseError{Source: "stub", Reason: "no channel"}},
			fetcher: &stubFetcher{},
			check: func(t *testing.T, err error) {
				var pe *scrape.ParseError
				assert.True(t, errors.As(err, &pe))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cfg := newRunner(t, tt.src, tt.fetcher, &fixedClock{t: t0})
			hist := &memHistory{}
			r.History = hist

			require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Output.JSONPath), 0o755))
			require.NoError(t, os.WriteFile(cfg.Output.JSONPath, []byte("previous json"), 0o644))
			require.NoError(t, os.WriteFile(cfg.Output.RSSPath, []byte("previous rss"), 0o644))

			_, err := r.Run(context.Background())
			require.Error(t, err)
			tt.check(t, err)

			b, _ := os.ReadFile(cfg.Output.JSONPath)
			assert.Equal(t, "previous json", string(b))
			b, _ = os.ReadFile(cfg.Output.RSSPath)
			assert.Equal(t, "previous rss", string(b))

			require.Len(t, hist.runs, 1)
			assert.Equal(t, store.StatusFailed, hist.runs[0].Status)
			assert.Zero(t, hist.sightings)
		})
	}
}

func TestRunCorruptPreviousIsColdStart(t *testing.T) {
	src := &stubSource{records: []domain.JobRecord{record("h1", "J1", t0)}}
	r, cfg := newRunner(t, src, &stubFetcher{}, &fixedClock{t: t0})
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Output.JSONPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.Output.JSONPath, []byte(`{"jobs": [{`), 0o644))

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changes.Added)
	assert.Equal(t, []string{"h1"}, readState(t, cfg.Output.JSONPath).IDs())
}

func TestRunUsesCompanySiteCache(t *testing.T) {
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	withSite := record("h1", "J1", t0)
	withSite.CompanyURL = "https://acme.example"
	bare := record("h2", "J2", t0)
	src := &stubSource{records: []domain.JobRecord{withSite, bare}}

	r, cfg := newRunner(t, src, &stubFetcher{}, &fixedClock{t: t0})
	r.History = db

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)

	st := readState(t, cfg.Output.JSONPath)
	for _, j := range st.Jobs {
		assert.Equal(t, "https://acme.example", j.CompanyURL, j.ID)
	}

	runs, err := store.ListRuns(context.Background(), db.Pool, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Changes.Added)
}
