package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"djangojobs/internal/domain"
	"djangojobs/internal/scrape/util"
)

// GetCompanySite returns the cached site for company or "" if missing.
func GetCompanySite(ctx context.Context, db *sql.DB, company string) (string, error) {
	company = normalizeCompanyKey(company)
	if company == "" {
		return "", nil
	}

	var site string
	err := db.QueryRowContext(ctx,
		`SELECT site FROM company_sites WHERE company = ? LIMIT 1;`,
		company,
	).Scan(&site)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(site), nil
}

func UpsertCompanySite(ctx context.Context, db *sql.DB, company, site string, now time.Time) error {
	company = normalizeCompanyKey(company)
	site = strings.ToLower(strings.TrimSpace(site))
	if company == "" || site == "" {
		return nil
	}

	_, err := db.ExecContext(ctx, `
INSERT INTO company_sites(company, site, seen_at)
VALUES(?,?,?)
ON CONFLICT(company) DO UPDATE SET
  site = excluded.site,
  seen_at = excluded.seen_at;
`, company, site, now.UTC().Format(time.RFC3339))

	return err
}

func normalizeCompanyKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// FillCompanySites learns company sites from records that carry one and
// backfills records of the same company that don't. It returns the updated
// copy and how many records were filled.
func (d *DB) FillCompanySites(ctx context.Context, jobs []domain.JobRecord, now time.Time) ([]domain.JobRecord, int, error) {
	out := make([]domain.JobRecord, len(jobs))
	copy(out, jobs)

	for _, j := range out {
		if j.CompanyURL == "" {
			continue
		}
		if err := UpsertCompanySite(ctx, d.Pool, j.Company, j.CompanyURL, now); err != nil {
			return jobs, 0, fmt.Errorf("learn company site: %w", err)
		}
	}

	filled := 0
	for i := range out {
		if out[i].CompanyURL != "" || out[i].Company == "" {
			continue
		}
		site, err := GetCompanySite(ctx, d.Pool, out[i].Company)
		if err != nil {
			return jobs, 0, fmt.Errorf("lookup company site: %w", err)
		}
		if site == "" {
			continue
		}
		out[i].CompanyURL = site
		if out[i].ImageURL == "" {
			out[i].ImageURL = util.FaviconURL(site)
		}
		filled++
	}
	return out, filled, nil
}
