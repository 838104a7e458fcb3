package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xhttp "RoundPull/pkg/http"
)

const page = `{"code":0,"msg":"ok","data":{"list":[
  {"issueNumber":"20250301100010003","number":"7"},
  {"issueNumber":"20250301100010002","number":"2"}
]}}`

func TestFetchSendsCacheBusterAndHeaders(t *testing.T) {
	var gotTS, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTS = r.URL.Query().Get("ts")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	fixed := time.UnixMilli(1740830400123)
	c := New(srv.URL, WithClock(func() time.Time { return fixed }),
		WithHeaders(map[string]string{"User-Agent": "Mozilla/5.0"}))

	entries, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 2 || entries[0].IssueNumber != "20250301100010003" || entries[0].Number != "7" {
		t.Fatalf("entries = %+v", entries)
	}
	if gotTS != "1740830400123" {
		t.Fatalf("ts = %q", gotTS)
	}
	if gotUA != "Mozilla/5.0" {
		t.Fatalf("user agent = %q", gotUA)
	}
}

func TestFetchMalformedIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":0,"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("malformed payload retried %d times", calls.Load())
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	entries, err := c.Fetch(context.Background())
	if err != nil || len(entries) != 2 {
		t.Fatalf("fetch = %v %v", entries, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(3, time.Millisecond))
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestFetchHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithTimeout(20*time.Millisecond))
	start := time.Now()
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("expected timeout")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("timeout not applied")
	}
}

func TestWaitHonoursRetryAfter(t *testing.T) {
	c := newClient("http://feed", WithRetry(3, 100*time.Millisecond))
	if d := c.wait(2, errors.New("boom")); d != 200*time.Millisecond {
		t.Fatalf("linear backoff = %v", d)
	}
	hinted := &xhttp.StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 2 * time.Second}
	if d := c.wait(1, fmt.Errorf("fetch: %w", hinted)); d != 2*time.Second {
		t.Fatalf("retry-after wait = %v", d)
	}
	hinted.RetryAfter = time.Hour
	if d := c.wait(1, hinted); d != maxRetryAfter {
		t.Fatalf("retry-after not capped: %v", d)
	}
}
