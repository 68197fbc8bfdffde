package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"djangojobs/internal/domain"

	"github.com/google/uuid"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type SourceRun struct {
	Source  string
	Records int
	Skipped int
	Total   int
	Error   string
}

type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Records    int
	Skipped    int
	Changes    domain.ChangeSummary
	Error      string
	Sources    []SourceRun
}

// RecordRun stores one run and its per-source lines. A zero ID gets a fresh
// random one, which is returned.
func RecordRun(ctx context.Context, db *sql.DB, r Run) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusOK
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c := r.Changes
	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs(id, started_at, finished_at, status, records, skipped, added, updated, unchanged, retained, removed, error)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?);`,
		r.ID.String(),
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.Status,
		r.Records, r.Skipped,
		c.Added, c.Updated, c.Unchanged, c.Retained, c.Removed,
		r.Error,
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	for _, s := range r.Sources {
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO run_sources(run_id, source, records, skipped, total, error)
VALUES(?,?,?,?,?,?);`,
			r.ID.String(), s.Source, s.Records, s.Skipped, s.Total, s.Error,
		); err != nil {
			return uuid.Nil, fmt.Errorf("insert run source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	return r.ID, nil
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, started_at, finished_at, status, records, skipped, added, updated, unchanged, retained, removed, error
FROM runs
ORDER BY started_at DESC, id
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			id, start, finish string
		)
		if err := rows.Scan(
			&id, &start, &finish, &r.Status, &r.Records, &r.Skipped,
			&r.Changes.Added, &r.Changes.Updated, &r.Changes.Unchanged, &r.Changes.Retained, &r.Changes.Removed,
			&r.Error,
		); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, start)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finish)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		src, err := runSources(ctx, db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Sources = src
	}
	return out, nil
}

func runSources(ctx context.Context, db *sql.DB, id uuid.UUID) ([]SourceRun, error) {
	rows, err := db.QueryContext(ctx, `
SELECT source, records, skipped, total, error
FROM run_sources
WHERE run_id = ?
ORDER BY source;`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRun
	for rows.Next() {
		var s SourceRun
		if err := rows.Scan(&s.Source, &s.Records, &s.Skipped, &s.Total, &s.Error); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CleanupOldRuns deletes runs that started before cutoff.
func CleanupOldRuns(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	c := cutoff.UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx, `
DELETE FROM run_sources WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?);`, c); err != nil {
		return 0, fmt.Errorf("cleanup old runs: %w", err)
	}
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?;`, c)
	if err != nil {
		return 0, fmt.Errorf("cleanup old runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *DB) RecordRun(ctx context.Context, r Run) (uuid.UUID, error) {
	return RecordRun(ctx, d.Pool, r)
}

func (d *DB) RecordSightings(ctx context.Context, jobs []domain.JobRecord, now time.Time) error {
	return RecordSightings(ctx, d.Pool, jobs, now)
}
