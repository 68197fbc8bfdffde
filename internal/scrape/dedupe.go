package scrape

import "djangojobs/internal/domain"

type DedupeStats struct {
	In        int
	Out       int
	Collapsed int
}

// Dedupe collapses records sharing an id into the richest one: more populated
// fields, then longer summary, then earliest in input. Output keeps the order
// in which each id was first seen.
func Dedupe(records []domain.JobRecord) ([]domain.JobRecord, DedupeStats) {
	st := DedupeStats{In: len(records)}
	if len(records) == 0 {
		return nil, st
	}

	idx := make(map[string]int, len(records))
	out := make([]domain.JobRecord, 0, len(records))
	for _, r := range records {
		i, seen := idx[r.ID]
		if !seen {
			idx[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		if richer(r, out[i]) {
			out[i] = r
		}
	}

	st.Out = len(out)
	st.Collapsed = st.In - st.Out
	return out, st
}

func richer(a, b domain.JobRecord) bool {
	ra, rb := a.Richness(), b.Richness()
	if ra != rb {
		return ra > rb
	}
	return len(a.Summary) > len(b.Summary)
}
