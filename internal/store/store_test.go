package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"djangojobs/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, Migrate(context.Background(), db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	t0 := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

	id1, err := db.RecordRun(ctx, Run{
		StartedAt:  t0,
		FinishedAt: t0.Add(30 * time.Second),
		Records:    10,
		Skipped:    1,
		Changes:    domain.ChangeSummary{Added: 3, Unchanged: 7},
		Sources: []SourceRun{
			{Source: "python.org", Records: 6, Total: 6},
			{Source: "builtwithdjango.com", Records: 4, Skipped: 1, Total: 5},
		},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id1)

	fixed := uuid.New()
	id2, err := db.RecordRun(ctx, Run{
		ID:         fixed,
		StartedAt:  t0.Add(24 * time.Hour),
		FinishedAt: t0.Add(24*time.Hour + time.Second),
		Status:     StatusFailed,
		Error:      "fetch https://www.python.org/jobs/feed/rss/: status 503 after 4 attempt(s)",
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, id2)

	runs, err := ListRuns(ctx, db.Pool, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, fixed, runs[0].ID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Empty(t, runs[0].Sources)

	assert.Equal(t, id1, runs[1].ID)
	assert.Equal(t, StatusOK, runs[1].Status)
	assert.Equal(t, t0, runs[1].StartedAt)
	assert.Equal(t, domain.ChangeSummary{Added: 3, Unchanged: 7}, runs[1].Changes)
	require.Len(t, runs[1].Sources, 2)
	assert.Equal(t, "builtwithdjango.com", runs[1].Sources[0].Source)
	assert.Equal(t, 1, runs[1].Sources[0].Skipped)

	n, err := CleanupOldRuns(ctx, db.Pool, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	runs, err = ListRuns(ctx, db.Pool, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordSightingsCountsRuns(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	t0 := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

	j := domain.JobRecord{ID: "abc", Title: "Django Dev", Company: "Acme", Source: "python.org", FirstSeenAt: t0, LastSeenAt: t0}
	require.NoError(t, db.RecordSightings(ctx, []domain.JobRecord{j}, t0))

	t1 := t0.Add(24 * time.Hour)
	j.LastSeenAt = t1
	retained := domain.JobRecord{ID: "old", Title: "Gone", FirstSeenAt: t0, LastSeenAt: t0}
	require.NoError(t, db.RecordSightings(ctx, []domain.JobRecord{j, retained}, t1))

	s, ok, err := GetSighting(ctx, db.Pool, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, t0, s.FirstSeen)
	assert.Equal(t, t1, s.LastSeen)

	_, ok, err = GetSighting(ctx, db.Pool, "old")
	require.NoError(t, err)
	assert.False(t, ok, "retained records were not seen this run")
}

func TestFillCompanySites(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	now := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

	jobs := []domain.JobRecord{
		{ID: "1", Company: "Acme Corp", CompanyURL: "https://acme.example"},
		{ID: "2", Company: "  acme   corp "},
		{ID: "3", Company: "Unknown Ltd"},
		{ID: "4"},
	}
	out, filled, err := db.FillCompanySites(ctx, jobs, now)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)
	assert.Equal(t, "https://acme.example", out[1].CompanyURL)
	assert.Contains(t, out[1].ImageURL, "url=https://acme.example")
	assert.Empty(t, out[2].CompanyURL)
	assert.Empty(t, jobs[1].CompanyURL, "input is not modified")

	site, err := GetCompanySite(ctx, db.Pool, "ACME CORP")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example", site)
}
