// Package api is a thin JSON client for the marketplace REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/nftmarket/internal/errs"
)

const maxErrorBody = 64 << 10

// TokenSource returns the current bearer token or "" when anonymous.
type TokenSource func() string

// Client performs calls against the backend. It never retries and has no
// timeout of its own; callers bound calls through the context.
type Client struct {
	base    string
	ep      Endpoints
	hc      *http.Client
	log     *zap.Logger
	token   TokenSource
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithTokenSource attaches a bearer token provider.
func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.token = ts } }

// WithEndpoints overrides the path table.
func WithEndpoints(ep Endpoints) Option { return func(c *Client) { c.ep = ep } }

// WithRateLimit throttles outgoing calls to rps (burst 1). rps<=0 disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		ep:   DefaultEndpoints(),
		hc:   http.DefaultClient,
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Endpoints returns the path table in use.
func (c *Client) Endpoints() Endpoints { return c.ep }

// URL builds the absolute URL for a table path.
func (c *Client) URL(path string) string { return c.base + path }

// Get issues GET path and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, c.URL(path), path, nil, out, true)
}

// Post issues POST path with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, c.URL(path), path, body, out, true)
}

// Put issues PUT path with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, c.URL(path), path, body, out, true)
}

// GetAbsolute fetches an absolute URL outside the endpoint table without the
// bearer token (off-chain metadata lives on third-party hosts).
func (c *Client) GetAbsolute(ctx context.Context, rawURL string, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, rawURL, nil, out, false)
}

func (c *Client) do(ctx context.Context, method, target, path string, body, out any, auth bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%s %s: %w", method, path, ctxErr)
			}
			return fmt.Errorf("%s %s: %w: %w", method, path, errs.ErrRateLimited, err)
		}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid, err := uuid.NewV4(); err == nil {
		req.Header.Set("X-Request-ID", rid.String())
	}
	if auth && c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("http",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("http",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
			Body:    raw,
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s %s: empty body: %w", method, path, errs.ErrMalformedResponse)
		}
		return fmt.Errorf("%s %s: decode: %w: %v", method, path, errs.ErrMalformedResponse, err)
	}
	return nil
}
