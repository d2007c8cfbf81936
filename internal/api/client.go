package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	headerAPIKey = "apikey"
	maxErrorBody = 64 << 10
)

// Client talks to the hosted banking backend: identity endpoints under
// /auth/v1, table rows under /rest/v1 and named procedures under
// /rest/v1/rpc. Safe for concurrent use.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, proxies).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New constructs a Client for the given backend URL and anonymous key.
func New(baseURL, anonKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("api: anonymous key is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.New("api: invalid base URL")
	}
	c := &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		// No client-level timeout: every call carries a context deadline
		// owned by the session manager.
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetSession installs the bearer tokens used for authenticated calls.
func (c *Client) SetSession(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = strings.TrimSpace(accessToken)
	c.refreshToken = strings.TrimSpace(refreshToken)
}

// ClearSession drops the installed tokens.
func (c *Client) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

// Tokens returns the currently installed token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.refreshToken
}

// HasSession reports whether a bearer token is installed.
func (c *Client) HasSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// providerError is the error body shape the backend returns.
type providerError struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorText        string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Status           int    `json:"status"`
}

func (p providerError) text() string {
	for _, s := range []string{p.Message, p.Msg, p.ErrorDescription, p.ErrorText} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// do issues one JSON request and normalizes every failure into *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: err.Error()}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindValidation, Message: err.Error()}
	}
	req.Header.Set(headerAPIKey, c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.mu.RLock()
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.remoteError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Message: "malformed response: " + err.Error(), Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) remoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var pe providerError
	_ = json.Unmarshal(data, &pe)
	msg := pe.text()
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	status := resp.StatusCode
	if pe.Status != 0 {
		status = pe.Status
	}
	return &Error{Kind: classify(status, msg), Message: msg, Status: status}
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Message: err.Error()}
	default:
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
}

// WithDeadline returns a context bounded by d, falling back to ten seconds
// when the duration is not positive.
func WithDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
