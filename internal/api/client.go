// ABOUTME: HTTP client for the COSINT backend with per-call credentials
// ABOUTME: Handles base URL joining, rate limiting, status errors and JSON decoding

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrMalformedResponse is wrapped by every response shape violation.
var ErrMalformedResponse = errors.New("malformed response")

// maxBodySize caps how much of a JSON response is read.
const maxBodySize = 10 << 20

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// TokenSource yields the bearer credential for one outbound call.
// An empty token means the call is sent anonymously.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a fixed credential, used by the terminal client.
type StaticToken string

// Token returns the token itself.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Cache stores raw bundle bodies between calls.
type Cache interface {
	GetCached(ctx context.Context, key string) ([]byte, error)
	PutCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration // non-streaming calls; 0 means no client timeout
	RateLimit  float64       // requests per second; 0 disables limiting
	Burst      int
	Cache      Cache
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the COSINT backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	streamHTTP *http.Client
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// New creates a Client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", opts.BaseURL)
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	hc := *base
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	// Streams are bounded by the caller's context, not a client timeout.
	sc := *base
	sc.Timeout = 0

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       &hc,
		streamHTTP: &sc,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		logger:     logger.With("component", "api"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL with exactly one slash between them.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, tokens TokenSource) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if tokens != nil {
		token, err := tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do sends req and converts non-2xx answers into *StatusError.
// On success the caller owns the response body.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		se := &StatusError{StatusCode: resp.StatusCode, Method: req.Method, Path: req.URL.Path}
		var errResp struct {
			Detail json.RawMessage `json:"detail"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &errResp) == nil && len(errResp.Detail) > 0 {
			var s string
			if json.Unmarshal(errResp.Detail, &s) == nil {
				se.Detail = s
			} else {
				se.Detail = string(errResp.Detail)
			}
		}
		return nil, se
	}
	return resp, nil
}

// getRaw performs an authenticated GET and returns the body bytes.
func (c *Client) getRaw(ctx context.Context, path string, tokens TokenSource) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, tokens)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, tokens TokenSource, out any) error {
	data, err := c.getRaw(ctx, path, tokens)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// Health checks that the backend answers GET /health with a 2xx status.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.getRaw(ctx, "/health", nil)
	return err
}
