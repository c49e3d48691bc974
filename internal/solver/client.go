// Package solver talks to the external linear-programming service. The client
// posts Parameters to its /optimize endpoint and returns the Results verbatim,
// so it can replace the local engine without callers noticing.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

var (
	// ErrUpstream is returned when the solver service is unreachable or answers with an error.
	ErrUpstream = errors.New("solver service error")
)

const (
	defaultTimeout     = 90 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
	maxErrorBody       = 4 << 10
)

// Client implements optimizer.Optimizer over HTTP.
type Client struct {
	endpoint    string
	session     *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.session = c
	}
}

// WithMaxAttempts bounds how many times a transient failure is retried.
func WithMaxAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial delay between attempts; it doubles each retry.
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) {
		if d >= 0 {
			cl.backoff = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient creates a client for the solver at baseURL (for example
// http://127.0.0.1:5000).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: solver URL is required", optimizer.ErrConfiguration)
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("%w: solver URL must be http(s), got %q", optimizer.ErrConfiguration, baseURL)
	}

	c := &Client{
		endpoint:    base + "/optimize",
		session:     &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Optimize posts params to the solver and decodes its Results.
func (c *Client) Optimize(ctx context.Context, params optimizer.Parameters) (optimizer.Results, error) {
	if err := params.Validate(); err != nil {
		return optimizer.Results{}, err
	}

	body, err := json.Marshal(params)
	if err != nil {
		return optimizer.Results{}, fmt.Errorf("encode parameters: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return optimizer.Results{}, err
	}
	defer resp.Body.Close()

	var res optimizer.Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return optimizer.Results{}, fmt.Errorf("%w: decode results: %v", ErrUpstream, err)
	}
	return res, nil
}

type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("solver responded %d: %s", e.Code, e.Message)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{Code: resp.StatusCode, Message: errorMessage(raw)}
	}
	return resp, nil
}

// doWithRetry retries network errors and 429/502/503/504 with exponential
// backoff. A 500 carries the solver's own failure and is returned as is.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		retry := false
		var se *statusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("solver request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: %w", ErrUpstream, lastErr)
}

// errorMessage extracts the "error" field the solver puts in failure bodies.
func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		if body.Details != "" {
			return body.Error + ": " + body.Details
		}
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
