// Package httpcap implements capability.Provider over a JSON HTTP endpoint.
//
// The request body is the capability.Request encoded as JSON. A 2xx response
// body is forwarded verbatim as the payload. Transport errors and 5xx
// responses map to capability.ErrUnavailable, 4xx responses to a
// *capability.RejectedError carrying the body's "error" field.
package httpcap

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

	"github.com/GoCodeAlone/aura/capability"
)

const (
	defaultTimeout = 15 * time.Second
	maxBody        = 1 << 20
)

// Client calls one remote capability.
type Client struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a static request header, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a Client posting to url.
func New(name, url string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		url:     url,
		headers: make(map[string]string),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "http:" + c.name }

// Invoke posts req and returns the response body.
func (c *Client) Invoke(ctx context.Context, req capability.Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("httpcap: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpcap: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, capability.Unavailable(transportReason(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, capability.Unavailable("read response: " + err.Error())
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, capability.Unavailable(fmt.Sprintf("status %d%s", resp.StatusCode, suffix(errorField(data))))
	case resp.StatusCode >= 400:
		reason := errorField(data)
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, capability.Rejected(reason)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, capability.Unavailable(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, capability.Unavailable("malformed response")
	}
	return json.RawMessage(data), nil
}

func transportReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return "timeout"
	}
	return err.Error()
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func errorField(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

func suffix(s string) string {
	if s == "" {
		return ""
	}
	return ": " + s
}
