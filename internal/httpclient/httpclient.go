// Package httpclient provides the shared outbound HTTP client for the
// workload. It injects the right Authorization header for bearer and
// SubjectAndAppToken credentials and retries transport failures and 5xx
// responses with exponential backoff. Non-5xx responses are returned as-is;
// status interpretation belongs to the caller.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fabrikam/fabric-workload/internal/dualtoken"
)

const defaultUserAgent = "fabric-workload-go/1.0"

// Client wraps an *http.Client with auth-header injection and retry.
// Safe for concurrent use.
type Client struct {
	hc         *http.Client
	log        *slog.Logger
	userAgent  string
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLogger sets the logger used for request/response debug logging.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMaxRetries bounds the number of retry attempts after the initial
// request (default 2, i.e. at most 3 requests).
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(opts ...Option) *Client {
	c := &Client{
		hc:         &http.Client{Timeout: 30 * time.Second},
		log:        slog.Default(),
		userAgent:  defaultUserAgent,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Underlying exposes the wrapped *http.Client for libraries that manage
// their own requests (e.g. oauth2 token sources).
func (c *Client) Underlying() *http.Client { return c.hc }

// Get issues a GET with the given credential. An empty token sends no
// Authorization header.
func (c *Client) Get(ctx context.Context, rawURL, token string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, token, "", nil)
}

// Head issues a HEAD with the given credential.
func (c *Client) Head(ctx context.Context, rawURL, token string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, token, "", nil)
}

// Delete issues a DELETE with the given credential.
func (c *Client) Delete(ctx context.Context, rawURL, token string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, rawURL, token, "", nil)
}

// Post issues a POST carrying a JSON body.
func (c *Client) Post(ctx context.Context, rawURL, token string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, token, "application/json", body)
}

// Put issues a PUT carrying a JSON body.
func (c *Client) Put(ctx context.Context, rawURL, token string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, rawURL, token, "application/json", body)
}

// Patch issues a PATCH carrying a JSON body.
func (c *Client) Patch(ctx context.Context, rawURL, token string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, rawURL, token, "application/json", body)
}

// PostForm issues a POST with form-encoded values, as used by OAuth2 token
// endpoints. Token endpoint errors arrive as 4xx responses and are returned
// to the caller without retry.
func (c *Client) PostForm(ctx context.Context, rawURL, token string, form url.Values) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, token, "application/x-www-form-urlencoded", []byte(form.Encode()))
}

// AuthorizationHeader renders the Authorization header value for a
// credential: composite SubjectAndAppToken values pass through verbatim,
// anything else is treated as a bearer token.
func AuthorizationHeader(token string) string {
	if strings.HasPrefix(token, dualtoken.Scheme) {
		return token
	}
	return "Bearer " + token
}

func (c *Client) do(ctx context.Context, method, rawURL, token, contentType string, body []byte) (*http.Response, error) {
	attempt := func() (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if token != "" {
			req.Header.Set("Authorization", AuthorizationHeader(token))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("User-Agent", c.userAgent)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			c.log.Debug("request failed", "method", method, "url", rawURL, "err", err)
			return nil, err
		}
		c.log.Debug("request completed",
			"method", method, "url", rawURL,
			"status", resp.StatusCode, "elapsed", time.Since(start))
		if resp.StatusCode >= 500 {
			// Drain so the connection can be reused across attempts.
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			return nil, fmt.Errorf("upstream returned %d for %s %s", resp.StatusCode, method, rawURL)
		}
		return resp, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.RetryWithData(attempt, bo)
}
