package domain

import "time"

// FeedState is one point-in-time snapshot of the published feed.
// It is built fresh every run and must not be mutated once serialized.
type FeedState struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Sources     []string    `json:"sources,omitempty"`
	Jobs        []JobRecord `json:"jobs"`
}

// IDs returns the record ids in feed order.
func (s FeedState) IDs() []string {
	out := make([]string, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		out = append(out, j.ID)
	}
	return out
}

// ChangeSummary counts what a reconciliation did. Observability only.
type ChangeSummary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Retained  int `json:"retained"`
	Removed   int `json:"removed"`
}

// Changed reports whether the feed content differs from the previous run.
func (c ChangeSummary) Changed() bool {
	return c.Added > 0 || c.Updated > 0 || c.Removed > 0
}
