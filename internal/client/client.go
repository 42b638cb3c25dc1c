// Package client talks to the finsight API on behalf of the terminal client.
//
// Client implements the store, avatar, change feed and insight interfaces
// consumed by internal/hooks. Every request carries the session's bearer
// token; the server scopes reads and writes to that token's user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"finsight/internal/core"
	"finsight/internal/log"
)

const (
	defaultTimeout = 30 * time.Second
	// insightsTimeout outlasts the server's own model deadline so a slow
	// generation still reaches the client.
	insightsTimeout = 90 * time.Second
	maxErrorBody    = 64 << 10
)

type Client struct {
	base    string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *log.Logger
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Request deadlines are applied
// per call, so h should not set its own Timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every call except insight generation, which gets a
// longer fixed budget. The default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API at baseURL (scheme and host, optionally
// a path prefix).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("client: base url %q has no host", baseURL)
	}
	c := &Client{
		base:   strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  log.Discard(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentClient)
	return c, nil
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil). Numbers are decoded as json.Number so loosely typed rows
// keep their exact decimal text.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doWithin(ctx, c.timeout, method, path, in, out)
}

func (c *Client) doWithin(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, timeout, out)
}

// send bounds the whole exchange, body included, by timeout.
func (c *Client) send(req *http.Request, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(resp)
		c.logger.DebugContext(req.Context(), "Request failed",
			log.FieldMethod, req.Method,
			log.FieldPath, req.URL.Path,
			log.FieldStatusCode, resp.StatusCode,
			log.FieldError, err.Error())
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// statusError reads the {error, details} body of a failed response. The
// result is a *core.APIError, wrapped with the matching core sentinel so
// callers can use errors.Is as they would against the store.
func statusError(resp *http.Response) error {
	apiErr := &core.APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(bytes.TrimSpace(raw)) > 0 {
		// non-JSON bodies (proxies, panics) leave the generic message
		_ = json.Unmarshal(raw, apiErr)
	}
	if sentinel := sentinelFor(resp.StatusCode); sentinel != nil {
		return &statusErr{sentinel: sentinel, api: apiErr}
	}
	return apiErr
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return core.ErrNotAuthenticated
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.ErrInvalidInput
	}
	return nil
}

type statusErr struct {
	sentinel error
	api      *core.APIError
}

func (e *statusErr) Error() string   { return e.api.UserMessage() }
func (e *statusErr) Unwrap() []error { return []error{e.sentinel, e.api} }

// StatusCode returns the HTTP status behind err, or 0 if err did not come
// from an API response.
func StatusCode(err error) int {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
