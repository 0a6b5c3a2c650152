// Package payments is a client for the wallet platform's payment API. The
// server uses it to approve and complete the payments that back treasury
// action signatures and to verify user access tokens.
package payments

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
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production payment API root.
const DefaultBaseURL = "https://api.minepi.com/v2"

// ErrMissingCredential means the server API key is not configured.
var ErrMissingCredential = errors.New("payments: api key not configured")

// UpstreamError is a non-2xx response from the payment API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payments: %s: upstream status %d", e.Op, e.StatusCode)
}

// User identifies the owner of an access token.
type User struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// Result is the decoded upstream payload, passed through to callers as-is.
type Result map[string]any

// Client calls the payment API. The zero value is not usable; use New.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New returns a client for baseURL authenticated with apiKey.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Approve approves paymentID server-side.
func (c *Client) Approve(ctx context.Context, paymentID string) (Result, error) {
	var out Result
	err := c.do(ctx, "approve", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/approve", c.keyAuth(), nil, &out)
	return out, err
}

// Complete records txID as the chain transaction of paymentID.
func (c *Client) Complete(ctx context.Context, paymentID, txID string) (Result, error) {
	var out Result
	body := map[string]string{"txid": txID}
	err := c.do(ctx, "complete", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/complete", c.keyAuth(), body, &out)
	return out, err
}

// Incomplete fetches the state of a payment left unfinished.
func (c *Client) Incomplete(ctx context.Context, paymentID string) (Result, error) {
	var out Result
	err := c.do(ctx, "incomplete", http.MethodGet, "/payments/"+url.PathEscape(paymentID)+"/incomplete", c.keyAuth(), nil, &out)
	return out, err
}

// Me resolves the user owning accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (User, error) {
	var u User
	if !c.Configured() {
		return u, ErrMissingCredential
	}
	err := c.do(ctx, "me", http.MethodGet, "/me", "Bearer "+accessToken, nil, &u)
	return u, err
}

func (c *Client) keyAuth() string {
	if c.apiKey == "" {
		return ""
	}
	return "Key " + c.apiKey
}

func (c *Client) do(ctx context.Context, op, method, path, auth string, in, out any) error {
	if auth == "" {
		return ErrMissingCredential
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("payments: %s: %w", op, err)
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("payments: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: %s: %w", op, err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payments: %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payments: %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := &UpstreamError{Op: op, StatusCode: resp.StatusCode}
		if json.Valid(data) {
			uerr.Body = data
		}
		return uerr
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payments: %s: decode response: %w", op, err)
	}
	return nil
}
