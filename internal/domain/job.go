package domain

import "time"

// JobRecord is the canonical form of one posting as published in the feed.
// Field order is the order of the persisted JSON document.
type JobRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	Salary         string   `json:"salary,omitempty"`
	EmploymentType string   `json:"employment_type,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	ApplyURL       string   `json:"apply_url,omitempty"`
	CompanyURL     string   `json:"company_url,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
}

// SameContent reports whether two records carry the same display fields.
// Bookkeeping timestamps are ignored.
func (j JobRecord) SameContent(o JobRecord) bool {
	return j.Title == o.Title &&
		j.Company == o.Company &&
		j.Location == o.Location &&
		j.URL == o.URL &&
		j.Source == o.Source &&
		j.PublishedAt.Equal(o.PublishedAt) &&
		j.Salary == o.Salary &&
		j.EmploymentType == o.EmploymentType &&
		equalStrings(j.Skills, o.Skills) &&
		equalStrings(j.Categories, o.Categories) &&
		j.Summary == o.Summary &&
		j.ApplyURL == o.ApplyURL &&
		j.CompanyURL == o.CompanyURL &&
		j.ImageURL == o.ImageURL
}

// Richness counts populated optional fields. Used to pick between duplicates.
func (j JobRecord) Richness() int {
	n := 0
	for _, s := range []string{j.Company, j.Location, j.Salary, j.EmploymentType, j.Summary, j.ApplyURL, j.CompanyURL, j.ImageURL} {
		if s != "" {
			n++
		}
	}
	if !j.PublishedAt.IsZero() {
		n++
	}
	if len(j.Skills) > 0 {
		n++
	}
	return n
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
