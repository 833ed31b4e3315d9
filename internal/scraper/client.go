// Package scraper fetches web novel pages and extracts readable chapter
// text and novel metadata from them. Fetches are rate limited per host so
// registering a 2000-chapter serial doesn't hammer its site.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/folioapp/folio-server/internal/ratelimit"
)

const (
	// Rate limit: 1 request per second per host, burst of 3
	defaultRPS   = 1.0
	defaultBurst = 3

	// HTTP client settings
	defaultTimeout = 30 * time.Second

	// MaxBodyBytes caps how much of a response is read. Chapter pages are
	// text; anything past this is not a chapter.
	MaxBodyBytes = 5 << 20

	userAgent = "folio-server/1.0"
)

// Page is one fetched document.
type Page struct {
	URL         string // Final URL after redirects
	ContentType string
	Body        []byte
}

// Client is a rate-limited page fetcher. The same client backs chapter
// fetching, metadata scraping, and the authenticated proxy endpoint, so
// all outbound traffic shares one per-host budget.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	maxBody int64
	ua      string
}

// Options configures a Client. Zero values fall back to package defaults.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	PerHostRPS   float64
	MaxBodyBytes int64
}

// New creates a new scraping client with default settings.
func New(logger *slog.Logger) *Client {
	return NewWithOptions(Options{}, logger)
}

// NewWithOptions creates a scraping client with explicit settings.
func NewWithOptions(opts Options, logger *slog.Logger) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = userAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PerHostRPS <= 0 {
		opts.PerHostRPS = defaultRPS
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxBodyBytes
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: ratelimit.New(opts.PerHostRPS, defaultBurst),
		logger:  logger,
		maxBody: opts.MaxBodyBytes,
		ua:      opts.UserAgent,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Fetch retrieves a single page. Only http and https URLs are accepted;
// requests to the same host wait on a shared rate limiter while different
// hosts proceed independently.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, wrapError("fetch", rawURL, fmt.Errorf("parse url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, wrapError("fetch", rawURL, ErrSchemeNotAllowed)
	}
	if u.Host == "" {
		return nil, wrapError("fetch", rawURL, errors.New("url has no host"))
	}

	// Wait for rate limit
	if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, wrapError("fetch", rawURL, fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrapError("fetch", rawURL, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	c.logger.Debug("scrape request",
		"host", u.Hostname(),
		"path", u.Path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapError("fetch", rawURL, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to read the body
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, wrapError("fetch", rawURL, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, wrapError("fetch", rawURL, ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, wrapError("fetch", rawURL, ErrUpstream)
	default:
		return nil, wrapError("fetch", rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	// Read one byte past the cap so an at-limit body is distinguishable
	// from an over-limit one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, wrapError("fetch", rawURL, fmt.Errorf("read response: %w", err))
	}
	if int64(len(body)) > c.maxBody {
		return nil, wrapError("fetch", rawURL, ErrBodyTooLarge)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:         finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
