package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(retries int) *Fetcher {
	return New(Options{
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Workers:        2,
	})
}

func TestGetReturnsBodyAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "django-jobs-extractor/3.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	page, err := testFetcher(0).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(page.Body))
	assert.Equal(t, "text/html", page.MediaType())
	assert.Equal(t, http.StatusOK, page.Status)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	page, err := testFetcher(3).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "finally", string(page.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testFetcher(2).Get(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
	assert.Equal(t, srv.URL, fe.Source)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(5).Get(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(Options{Timeout: 50 * time.Millisecond, MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := f.Get(context.Background(), srv.URL)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Timeout)
	assert.Equal(t, 2, fe.Attempts)
}

func TestGetDecompressesGzipBodies(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("compressed listing"))
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	page, err := testFetcher(0).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "compressed listing", string(page.Body))
}

func TestGetAllIsolatesFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("a")) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("c")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}
	results := testFetcher(0).GetAll(context.Background(), urls)
	require.Len(t, results, 3)

	assert.Equal(t, urls[0], results[0].URL)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a", string(results[0].Page.Body))

	assert.Error(t, results[1].Err)

	assert.NoError(t, results[2].Err)
	assert.Equal(t, "c", string(results[2].Page.Body))

	var fe *FetchError
	require.True(t, errors.As(FirstError(results), &fe))
	assert.Equal(t, urls[1], fe.Source)
}

func TestHostLimiterNilIsNoop(t *testing.T) {
	var hl *HostLimiter
	assert.NoError(t, hl.WaitURL(context.Background(), "https://example.com"))
}

func TestHostLimiterBucketsPerHost(t *testing.T) {
	hl := NewHostLimiter(100, 1)
	ctx := context.Background()
	require.NoError(t, hl.WaitURL(ctx, "https://www.python.org/jobs/1/"))
	require.NoError(t, hl.WaitURL(ctx, "https://WWW.PYTHON.ORG:443/jobs/2/"))
	require.NoError(t, hl.WaitURL(ctx, "https://builtwithdjango.com/jobs/"))
	require.NoError(t, hl.WaitURL(ctx, "::not a url"))
	assert.Equal(t, 3, hl.Hosts())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	slow := NewHostLimiter(0.001, 1)
	require.NoError(t, slow.WaitURL(ctx, "https://a.example"))
	assert.Error(t, slow.WaitURL(cctx, "https://a.example"))
}
