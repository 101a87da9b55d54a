package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"grocer-cli/internal/metrics"

	"github.com/google/uuid"
)

const DefaultBaseURL = "http://localhost:8000/api/v1"

// Client performs one round trip per call: no retries, caching, or dedup.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// SetToken attaches (or, with "", detaches) the bearer credential for all later calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type request struct {
	method string
	// route is the path template used for metrics labels (e.g. "/items/{id}").
	route string
	path  string
	query url.Values
	json  any
	form  url.Values
}

// do sends req and decodes a 2xx body into out (when out != nil). It returns
// the response status so deletes can tell 204 apart.
func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.json != nil:
		b, err := json.Marshal(req.json)
		if err != nil {
			return 0, &Error{Kind: KindNetwork, Message: msgGeneric, Err: err}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Message: msgGeneric, Err: err}
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	hreq.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	hreq.Header.Set("X-Request-ID", reqID)
	if tok := c.currentToken(); tok != "" {
		hreq.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		c.metrics.ObserveRequest(req.method, req.route, 0, time.Since(start))
		c.log.Debug("gateway request failed", "method", req.method, "route", req.route, "request_id", reqID, "err", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, &Error{Kind: KindNetwork, Message: "Request cancelled.", Err: ctxErr}
		}
		return 0, &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	dur := time.Since(start)
	c.metrics.ObserveRequest(req.method, req.route, resp.StatusCode, dur)
	c.log.Debug("gateway request", "method", req.method, "route", req.route, "status", resp.StatusCode, "duration", dur, "request_id", reqID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errorFromResponse(resp.StatusCode, raw)
	}
	if readErr != nil {
		return resp.StatusCode, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: msgMalformed, Err: readErr}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: msgMalformed, Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: msgMalformed, Err: err}
	}
	return resp.StatusCode, nil
}
