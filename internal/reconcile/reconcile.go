// Package reconcile merges the previously published feed with freshly parsed
// records. It is a pure function of its inputs.
package reconcile

import (
	"cmp"
	"slices"
	"time"

	"djangojobs/internal/domain"
)

const DefaultGrace = 72 * time.Hour

// Policy decides what happens to records that vanished upstream.
type Policy struct {
	// Grace is how long a vanished record stays published after it was last
	// seen. Zero drops it on the first run that misses it.
	Grace time.Duration
}

func (p Policy) retain(lastSeen, now time.Time) bool {
	if p.Grace <= 0 {
		return false
	}
	return now.Sub(lastSeen) <= p.Grace
}

// Reconcile returns the next feed state and what changed. prev may be nil
// (first run). Neither prev nor fresh is modified.
func Reconcile(prev *domain.FeedState, fresh []domain.JobRecord, now time.Time, policy Policy) (domain.FeedState, domain.ChangeSummary) {
	now = stamp(now)

	var sum domain.ChangeSummary
	old := map[string]domain.JobRecord{}
	if prev != nil {
		for _, r := range prev.Jobs {
			if _, dup := old[r.ID]; !dup {
				old[r.ID] = r
			}
		}
	}

	seen := make(map[string]bool, len(fresh))
	jobs := make([]domain.JobRecord, 0, len(fresh)+len(old))

	for _, r := range fresh {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		r = copyRecord(r)
		r.PublishedAt = stamp(r.PublishedAt)
		r.LastSeenAt = now

		if p, ok := old[r.ID]; ok {
			if r.PublishedAt.IsZero() {
				r.PublishedAt = stamp(p.PublishedAt)
			}
			r.FirstSeenAt = minTime(stamp(p.FirstSeenAt), now)
			if r.FirstSeenAt.IsZero() {
				r.FirstSeenAt = now
			}
			if r.SameContent(p) {
				sum.Unchanged++
			} else {
				sum.Updated++
			}
		} else {
			if r.PublishedAt.IsZero() {
				r.PublishedAt = now
			}
			r.FirstSeenAt = now
			sum.Added++
		}
		jobs = append(jobs, r)
	}

	if prev != nil {
		emitted := map[string]bool{}
		for _, p := range prev.Jobs {
			if seen[p.ID] || emitted[p.ID] {
				continue
			}
			emitted[p.ID] = true

			last := minTime(stamp(p.LastSeenAt), now)
			if !policy.retain(last, now) {
				sum.Removed++
				continue
			}
			p = copyRecord(p)
			p.PublishedAt = stamp(p.PublishedAt)
			p.LastSeenAt = last
			p.FirstSeenAt = minTime(stamp(p.FirstSeenAt), last)
			if p.FirstSeenAt.IsZero() {
				p.FirstSeenAt = last
			}
			sum.Retained++
			jobs = append(jobs, p)
		}
	}

	Sort(jobs)
	return domain.FeedState{GeneratedAt: now, Jobs: jobs}, sum
}

// Sort orders jobs newest first, then by id.
func Sort(jobs []domain.JobRecord) {
	slices.SortFunc(jobs, func(a, b domain.JobRecord) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Second)
}

func minTime(a, b time.Time) time.Time {
	if a.After(b) {
		return b
	}
	return a
}

// copyRecord detaches the slice fields so callers' records stay untouched.
func copyRecord(r domain.JobRecord) domain.JobRecord {
	r.Skills = slices.Clone(r.Skills)
	r.Categories = slices.Clone(r.Categories)
	return r
}
