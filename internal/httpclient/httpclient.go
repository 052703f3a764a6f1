// Package httpclient builds per-user HTTP clients for talking to the
// booking upstream: one cookie jar per user, shared retry/backoff
// policy, and a rate limiter so concurrent monitor jobs don't hammer the
// upstream.
//
// Grounded on other_examples' per-job client-scoping idiom (jobClients
// map[string]*http.Client built from per-job auth snapshots, each with
// its own cookiejar) and on the teacher's use of sethvargo/go-retry for
// bounded exponential backoff.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// Config tunes the clients this package builds.
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	Referer         string
	Origin          string
	MaxRetries      uint64
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	RequestsPerSec  float64
	Burst           int
}

// DefaultConfig mirrors the upstream client's observed headers and a
// conservative retry/rate-limit policy.
func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		UserAgent:      "Mozilla/5.0",
		MaxRetries:     3,
		BaseBackoff:    200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RequestsPerSec: 2,
		Burst:          4,
	}
}

// Factory creates one scoped *Client per user. It is safe for concurrent
// use; each call to ForUser returns an independent client with its own
// cookie jar so sessions for different users are never mixed.
type Factory struct {
	cfg     Config
	limiter *rate.Limiter
}

// NewFactory builds a Factory sharing a single rate limiter across every
// client it produces, so the limit applies to total upstream load rather
// than per-user load.
func NewFactory(cfg Config) *Factory {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultConfig().RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	return &Factory{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

// Client wraps an *http.Client scoped to one user's cookie jar, plus the
// shared retry policy and rate limiter.
type Client struct {
	HTTP    *http.Client
	cfg     Config
	limiter *rate.Limiter
}

// ForUser builds a new Client with a fresh cookie jar seeded from an
// existing cookie header, if any.
func (f *Factory) ForUser(baseURL, cookieHeader string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create cookie jar: %w", err)
	}
	c := &Client{
		HTTP: &http.Client{
			Timeout: f.cfg.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:     f.cfg,
		limiter: f.limiter,
	}
	if cookieHeader != "" {
		if err := seedJar(jar, baseURL, cookieHeader); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Do executes req with the shared rate limiter and the configured
// User-Agent/Referer/Origin headers applied. GET and HEAD requests are
// retried on transient network and 5xx failures with exponential backoff;
// requests with any other method are sent once.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Referer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Origin != "" && req.Header.Get("Origin") == "" {
		req.Header.Set("Origin", c.cfg.Origin)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("httpclient: rate limiter wait: %w", err)
	}

	maxRetries := c.cfg.MaxRetries
	if req.Method != "" && req.Method != http.MethodGet && req.Method != http.MethodHead {
		maxRetries = 0
	}
	backoff := retry.NewExponential(c.cfg.BaseBackoff)
	backoff = retry.WithMaxRetries(maxRetries, backoff)
	backoff = retry.WithCappedDuration(c.cfg.MaxBackoff, backoff)

	var resp *http.Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, doErr := c.HTTP.Do(req.Clone(ctx))
		if doErr != nil {
			return retry.RetryableError(doErr)
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return retry.RetryableError(fmt.Errorf("httpclient: upstream status %d", r.StatusCode))
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func seedJar(jar *cookiejar.Jar, rawURL, cookieHeader string) error {
	req := &http.Request{Header: http.Header{"Cookie": []string{cookieHeader}}}
	u, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("httpclient: parse base url: %w", err)
	}
	jar.SetCookies(u.URL, req.Cookies())
	return nil
}

// CookieHeader flattens the client's jar for the given URL back into a
// single "k=v; k2=v2" header string, the shape the upstream expects for
// the hand-authenticated order-placement request.
func (c *Client) CookieHeader(rawURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("httpclient: parse url: %w", err)
	}
	cookies := c.HTTP.Jar.Cookies(req.URL)
	out := ""
	for i, ck := range cookies {
		if i > 0 {
			out += "; "
		}
		out += ck.Name + "=" + ck.Value
	}
	return out, nil
}
