package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"djangojobs/internal/domain"
)

// RecordSightings upserts every published job id. runs counts how many
// successful runs have seen the id.
func RecordSightings(ctx context.Context, db *sql.DB, jobs []domain.JobRecord, now time.Time) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO job_sightings(id, title, company, source, first_seen, last_seen, runs)
VALUES(?,?,?,?,?,?,1)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  company = excluded.company,
  source = excluded.source,
  last_seen = excluded.last_seen,
  runs = job_sightings.runs + 1;`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now.UTC().Format(time.RFC3339)
	for _, j := range jobs {
		if !j.LastSeenAt.Equal(now) {
			continue // retained, not seen this run
		}
		first := j.FirstSeenAt.UTC().Format(time.RFC3339)
		if _, err := stmt.ExecContext(ctx, j.ID, j.Title, j.Company, j.Source, first, ts); err != nil {
			return fmt.Errorf("upsert sighting %s: %w", j.ID, err)
		}
	}
	return tx.Commit()
}

type Sighting struct {
	ID        string
	Title     string
	Company   string
	Source    string
	FirstSeen time.Time
	LastSeen  time.Time
	Runs      int
}

func GetSighting(ctx context.Context, db *sql.DB, id string) (Sighting, bool, error) {
	var (
		s           Sighting
		first, last string
	)
	err := db.QueryRowContext(ctx, `
SELECT id, title, company, source, first_seen, last_seen, runs
FROM job_sightings WHERE id = ? LIMIT 1;`, id).
		Scan(&s.ID, &s.Title, &s.Company, &s.Source, &first, &last, &s.Runs)
	if err == sql.ErrNoRows {
		return Sighting{}, false, nil
	}
	if err != nil {
		return Sighting{}, false, err
	}
	s.FirstSeen, _ = time.Parse(time.RFC3339, first)
	s.LastSeen, _ = time.Parse(time.RFC3339, last)
	return s, true, nil
}
