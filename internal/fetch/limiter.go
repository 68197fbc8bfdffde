package fetch

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per hostname, so detail-page fan-out
// against one board never starves requests to the other. A nil
// *HostLimiter does not limit.
type HostLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	every := rate.Limit(perSecond)
	if perSecond <= 0 {
		every = rate.Inf
	}
	return &HostLimiter{buckets: map[string]*rate.Limiter{}, every: every, burst: burst}
}

func (hl *HostLimiter) bucket(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	b, ok := hl.buckets[host]
	if !ok {
		b = rate.NewLimiter(hl.every, hl.burst)
		hl.buckets[host] = b
	}
	return b
}

// hostKey folds case and drops the port; unparsable URLs share one bucket.
func hostKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "_"
	}
	return strings.ToLower(u.Hostname())
}

// WaitURL blocks until the host of raw may be requested or ctx is done.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return nil
	}
	return hl.bucket(hostKey(raw)).Wait(ctx)
}

// Hosts is the number of distinct hosts seen so far.
func (hl *HostLimiter) Hosts() int {
	if hl == nil {
		return 0
	}
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.buckets)
}
