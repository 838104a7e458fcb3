package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
	xhttp "RoundPull/pkg/http"
	"RoundPull/pkg/util"
)

const maxRetryAfter = 10 * time.Second

// ErrMalformed marks a response that decoded but carried no usable page.
var ErrMalformed = errors.New("feed: malformed payload")

// Option configures Client.
type Option func(*Client)

// WithTimeout bounds a single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHeaders sets headers sent on every poll.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithRetry sets the attempt count and base backoff for transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

// WithClock sets the time source for the cache-buster parameter.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithHTTPClient injects the transport, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// Client polls the round history page. Each request carries a ts cache-buster.
type Client struct {
	url      string
	timeout  time.Duration
	headers  map[string]string
	attempts int
	backoff  time.Duration
	now      func() time.Time
	hc       *http.Client
	client   *xhttp.Client
}

// New creates a feed client for url.
func New(url string, opts ...Option) drepo.FeedSource {
	return newClient(url, opts...)
}

func newClient(url string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		timeout:  10 * time.Second,
		headers:  map[string]string{"Accept": "application/json"},
		attempts: 1,
		backoff:  200 * time.Millisecond,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	copts := []xhttp.ClientOption{xhttp.WithTimeout(c.timeout), xhttp.WithHeaders(c.headers)}
	if c.hc != nil {
		copts = append(copts, xhttp.WithHTTPClient(c.hc))
	}
	c.client = xhttp.NewClient(copts...)
	return c
}

// Fetch returns the latest page, newest first. Entries are returned as sent; validation is the caller's.
func (c *Client) Fetch(ctx context.Context) ([]models.FeedEntry, error) {
	attempts := max(c.attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		var entries []models.FeedEntry
		entries, err = c.fetchOnce(ctx)
		if err == nil {
			return entries, nil
		}
		if !retryable(err) || i == attempts {
			break
		}
		select {
		case <-time.After(c.wait(i, err)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// wait grows linearly with the attempt and honours a server Retry-After up to maxRetryAfter.
func (c *Client) wait(attempt int, err error) time.Duration {
	d := time.Duration(attempt) * c.backoff
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.RetryAfter > d {
		d = min(se.RetryAfter, maxRetryAfter)
	}
	return d
}

func (c *Client) fetchOnce(ctx context.Context) ([]models.FeedEntry, error) {
	var env models.FeedEnvelope
	err := c.client.GetJSON(ctx, c.url, url.Values{"ts": {util.CacheBuster(c.now())}}, &env)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.url, err)
	}
	if env.Data.List == nil {
		return nil, ErrMalformed
	}
	return env.Data.List, nil
}

// retryable reports whether another attempt could succeed. Client errors and bad payloads are final.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformed) || errors.Is(err, context.Canceled) {
		return false
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
