// Package feed renders a FeedState as the persisted JSON document and as an
// RSS 2.0 channel, and loads the JSON document back as previous state.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"djangojobs/internal/domain"
)

// Document is the on-disk JSON shape. Counts and Changes describe the run
// that wrote it and are ignored when the file is read back.
type Document struct {
	domain.FeedState
	Counts  *Counts               `json:"counts,omitempty"`
	Changes *domain.ChangeSummary `json:"changes,omitempty"`
}

// Counts are the collection totals of one run, before reconciliation.
// PerSource maps a source name to the records it produced.
type Counts struct {
	PerSource         map[string]int `json:"per_source"`
	InputCount        int            `json:"input_count"`
	OutputCount       int            `json:"output_count"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	Skipped           int            `json:"skipped"`
}

func MarshalJSON(doc Document) ([]byte, error) {
	doc.FeedState = normalize(doc.FeedState)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode feed json: %w", err)
	}
	return buf.Bytes(), nil
}

func ParseJSON(b []byte) (domain.FeedState, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.FeedState{}, fmt.Errorf("decode feed json: %w", err)
	}
	if doc.Jobs == nil {
		return domain.FeedState{}, errors.New("decode feed json: no jobs array")
	}
	for i, j := range doc.Jobs {
		if j.ID == "" {
			return domain.FeedState{}, fmt.Errorf("decode feed json: job %d has no id", i)
		}
	}
	return normalize(doc.FeedState), nil
}

// LoadPrevious reads the last published document. A missing file is a first
// run; an unreadable document is logged and treated the same way.
func LoadPrevious(path string, lg *slog.Logger) (*domain.FeedState, error) {
	if lg == nil {
		lg = slog.Default()
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read previous feed: %w", err)
	}
	st, err := ParseJSON(b)
	if err != nil {
		lg.Warn("previous feed is corrupt, starting cold", "component", "feed", "path", path, "err", err)
		return nil, nil
	}
	return &st, nil
}

func normalize(st domain.FeedState) domain.FeedState {
	st.GeneratedAt = utc(st.GeneratedAt)
	if st.Jobs == nil {
		st.Jobs = []domain.JobRecord{}
	}
	jobs := make([]domain.JobRecord, len(st.Jobs))
	for i, j := range st.Jobs {
		j.PublishedAt = utc(j.PublishedAt)
		j.FirstSeenAt = utc(j.FirstSeenAt)
		j.LastSeenAt = utc(j.LastSeenAt)
		jobs[i] = j
	}
	st.Jobs = jobs
	return st
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}
