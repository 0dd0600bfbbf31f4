// Package api is the HTTP adapter for the Marathon Cloud REST API.
//
// A single Client owns one *http.Client with a pooled transport and is safe
// for concurrent use by the uploader, poller, crawler and downloader.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://cloud.marathonlabs.io/api"

const requestIDHeader = "X-Request-ID"

// Client talks to the remote test-execution service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tokens     *tokenManager
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL authenticated with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: newTransport()},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = &tokenManager{fetch: c.fetchToken}
	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ReportURL returns the web report location for a run.
func (c *Client) ReportURL(runID string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return c.baseURL + "/report/" + runID
	}
	return fmt.Sprintf("%s://%s/report/%s", u.Scheme, u.Host, runID)
}

// Authenticate exchanges the API key for a JWT. The token is cached and
// reused by bearer-authenticated calls.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	const op = "authenticate"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/user/jwt", c.keyQuery()), nil)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	resp, err := c.do(req, op)
	if err != nil {
		return "", err
	}
	var tr tokenResponse
	if err := decode(resp, op, &tr); err != nil {
		return "", err
	}
	return tr.Token, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) keyQuery() url.Values {
	return url.Values{"api_key": {c.apiKey}}
}

// do sends req and maps non-2xx responses to *RequestError. On success the
// caller owns resp.Body.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	c.logger.Debug("api: http request",
		"op", op,
		"method", req.Method,
		"path", req.URL.Path,
		"request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api: http request failed", "op", op, "request_id", requestID, "error", stripURL(err))
		return nil, &RequestError{Op: op, RequestID: requestID, Err: stripURL(err)}
	}

	c.logger.Debug("api: http response",
		"op", op,
		"status", resp.StatusCode,
		"request_id", requestID)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, newStatusError(op, requestID, resp.StatusCode, body)
}

// doBearer performs a bearer-authenticated GET. A 401 invalidates the cached
// token and the request is retried once with a fresh one.
func (c *Client) doBearer(ctx context.Context, op, rawURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.do(req, op)
		if rerr, ok := err.(*RequestError); ok && attempt == 0 && rerr.StatusCode == http.StatusUnauthorized {
			c.logger.Info("api: received 401, refreshing token and retrying", "op", op)
			c.tokens.Invalidate()
			continue
		}
		return resp, err
	}
}

func (c *Client) postJSON(ctx context.Context, op, rawURL string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op)
}

func decode(resp *http.Response, op string, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RequestID:  resp.Request.Header.Get(requestIDHeader),
			Err:        fmt.Errorf("%w: %v", ErrDeserialization, err),
		}
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       20 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
