// Package sheets downloads the published spreadsheet CSV over HTTP.
//
// Each fetch uses a request profile. The primary profile asks for CSV
// explicitly; the retry profile relaxes the Accept header and presents a
// browser-like User-Agent, which some publishing endpoints require. The proxy
// profile is used when the raw CSV is forwarded to clients.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/JonMunkholm/material-finder/internal/logging"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxBodySize caps a CSV download when Config.MaxBodySize is unset.
const DefaultMaxBodySize int64 = 10 << 20

// HTTPDoer is the subset of *http.Client the fetcher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Profile is the header set of one kind of request.
type Profile struct {
	Attempt   core.Attempt
	Accept    string
	UserAgent string
	NoCache   bool
}

// Config configures a Client.
type Config struct {
	URL            string
	UserAgent      string
	RetryUserAgent string
	MaxBodySize    int64
	HTTPClient     HTTPDoer
}

// Client fetches the CSV body. It implements core.Source.
type Client struct {
	url         string
	primary     Profile
	retry       Profile
	proxy       Profile
	maxBodySize int64
	http        HTTPDoer
}

// New creates a Client. An empty URL is accepted; every fetch then fails
// with core.ErrSourceNotConfigured.
func New(cfg Config) *Client {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.HTTPClient == nil {
		// Deadlines come from the caller's context.
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		url: strings.TrimSpace(cfg.URL),
		primary: Profile{
			Attempt:   core.AttemptPrimary,
			Accept:    "text/csv, text/plain, */*",
			UserAgent: cfg.UserAgent,
		},
		retry: Profile{
			Attempt:   core.AttemptRetry,
			Accept:    "*/*",
			UserAgent: cfg.RetryUserAgent,
		},
		proxy: Profile{
			Attempt:   core.AttemptPrimary,
			Accept:    "text/csv, text/plain, */*",
			UserAgent: cfg.UserAgent,
			NoCache:   true,
		},
		maxBodySize: cfg.MaxBodySize,
		http:        cfg.HTTPClient,
	}
}

// Configured reports whether a source URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// FetchCSV downloads the CSV using the profile for attempt.
func (c *Client) FetchCSV(ctx context.Context, attempt core.Attempt) (string, error) {
	p := c.primary
	if attempt == core.AttemptRetry {
		p = c.retry
	}
	return c.Fetch(ctx, p)
}

// FetchForProxy downloads the CSV with caching disabled upstream, for
// forwarding to a client verbatim.
func (c *Client) FetchForProxy(ctx context.Context) (string, error) {
	return c.Fetch(ctx, c.proxy)
}

// Fetch performs one GET with profile p and returns the decoded body.
// Transport failures are returned as *core.FetchError.
func (c *Client) Fetch(ctx context.Context, p Profile) (string, error) {
	if c.url == "" {
		return "", core.ErrSourceNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build csv request: %w", err)
	}
	if p.Accept != "" {
		req.Header.Set("Accept", p.Accept)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.NoCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	logger := logging.FromContext(ctx)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &core.FetchError{Attempt: p.Attempt, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &core.FetchError{
			Attempt:    p.Attempt,
			StatusCode: resp.StatusCode,
			Err:        statusError(resp.StatusCode),
		}
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return "", &core.FetchError{Attempt: p.Attempt, Err: err}
	}

	logger.Debug("csv downloaded",
		"attempt", p.Attempt.String(),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// readBody reads at most maxBodySize bytes and decodes them as UTF-8,
// dropping a leading byte order mark and replacing invalid sequences.
func (c *Client) readBody(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, c.maxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("read csv body: %w", err)
	}
	if int64(len(raw)) > c.maxBodySize {
		return "", fmt.Errorf("csv body exceeds %d bytes", c.maxBodySize)
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("decode csv body: %w", err)
	}
	return string(decoded), nil
}

func statusError(code int) error {
	if text := http.StatusText(code); text != "" {
		return errors.New(strings.ToLower(text))
	}
	return errors.New("unexpected status")
}
