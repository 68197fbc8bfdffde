// Package fetch retrieves upstream listing content over HTTP with a timeout,
// bounded retries and per-host rate limiting.
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const maxBody = 8 << 20

type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Workers           int

	// Client overrides the default client (tests).
	Client *http.Client
	Logger *slog.Logger
}

// Page is the raw content of one successful GET.
type Page struct {
	URL         string
	ContentType string
	Status      int
	Body        []byte
}

// FetchError is returned once every attempt for a source has failed.
type FetchError struct {
	Source   string
	Status   int // last HTTP status; 0 for transport failures
	Timeout  bool
	Attempts int
	Err      error

	permanent bool
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timeout after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.Source, e.Status, e.Attempts)
	default:
		return fmt.Sprintf("fetch %s: %v (after %d attempt(s))", e.Source, e.Err, e.Attempts)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

type Fetcher struct {
	opts    Options
	hc      *http.Client
	limiter *HostLimiter
	log     *slog.Logger
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 40 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "django-jobs-extractor/3.0"
	}
	hc := opts.Client
	if hc == nil {
		hc = &http.Client{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	var limiter *HostLimiter
	if opts.RequestsPerSecond > 0 {
		limiter = NewHostLimiter(opts.RequestsPerSecond, opts.Burst)
	}
	return &Fetcher{
		opts:    opts,
		hc:      hc,
		limiter: limiter,
		log:     lg.With("component", "fetch"),
	}
}

// Get issues a GET against rawURL, retrying transport errors, timeouts,
// 408, 429 and 5xx with exponential backoff.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (Page, error) {
	var (
		page     Page
		attempts int
	)

	op := func() error {
		attempts++
		p, err := f.once(ctx, rawURL)
		if err == nil {
			page = p
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		f.log.Warn("attempt failed", "url", rawURL, "attempt", attempts, "err", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialBackoff
	b.MaxInterval = f.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.2
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}

	retries := f.opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	if err == nil {
		return page, nil
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		fe = &FetchError{Source: rawURL, Err: err, Timeout: isTimeout(err)}
	}
	fe.Attempts = attempts
	return Page{}, fe
}

func (f *Fetcher) once(ctx context.Context, rawURL string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
		return Page{}, &FetchError{Source: rawURL, Err: err, Timeout: isTimeout(err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, &FetchError{Source: rawURL, Err: err, permanent: true}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	res, err := f.hc.Do(req)
	if err != nil {
		return Page{}, &FetchError{Source: rawURL, Err: err, Timeout: isTimeout(err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return Page{}, &FetchError{Source: rawURL, Status: res.StatusCode, Err: errors.New(res.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return Page{}, &FetchError{Source: rawURL, Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(err)}
	}
	body, err = gunzipMaybe(body)
	if err != nil {
		return Page{}, &FetchError{Source: rawURL, Err: err, permanent: true}
	}

	return Page{
		URL:         rawURL,
		ContentType: res.Header.Get("Content-Type"),
		Status:      res.StatusCode,
		Body:        body,
	}, nil
}

// Result is the outcome for one URL of GetAll: either Page or Err is set.
type Result struct {
	URL  string
	Page Page
	Err  error
}

// GetAll fetches urls on a bounded pool. Results keep input order and a
// failing URL never cancels the others.
func (f *Fetcher) GetAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	var g errgroup.Group
	g.SetLimit(f.opts.Workers)
	for i, u := range urls {
		g.Go(func() error {
			p, err := f.Get(ctx, u)
			results[i] = Result{URL: u, Page: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	f.log.Debug("fetched batch", "urls", len(urls), "failed", failed(results), "hosts", f.limiter.Hosts())
	return results
}

func failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// FirstError returns the first failed result in input order.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return true
	}
	switch {
	case fe.permanent:
		return false
	case fe.Status == 0:
		return !errors.Is(fe.Err, context.Canceled)
	case fe.Status == http.StatusRequestTimeout, fe.Status == http.StatusTooManyRequests:
		return true
	case fe.Status >= 500:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func gunzipMaybe(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxBody))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}

// MediaType returns the lowercased media type without parameters.
func (p Page) MediaType() string {
	ct := strings.ToLower(strings.TrimSpace(p.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
