// Package periodapi is the dashboard-side client for the period endpoints.
package periodapi

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

	"github.com/labdesk/labdesk/internal/period"
)

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:8081/api"

const defaultErrorMessage = "Request failed"

// ErrUnauthorized is returned on HTTP 401. The stored token is cleared first.
var ErrUnauthorized = errors.New("Unauthorized")

// APIError is a non-2xx response. Message is the server's text, shown verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client wraps the REST API used by the dashboard.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	onUnauthorized func()

	mu    sync.RWMutex
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken seeds the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// OnUnauthorized registers a hook run after a 401 cleared the token.
func OnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient constructs a new client.
func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken stores the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the stored bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ClearToken forgets the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// ListPeriods fetches every period.
func (c *Client) ListPeriods(ctx context.Context) ([]period.Period, error) {
	var out []period.Period
	if err := c.do(ctx, http.MethodGet, "/periods", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePeriod registers a pending period.
func (c *Client) CreatePeriod(ctx context.Context, in period.CreatePeriodInput) (period.Period, error) {
	var out period.Period
	err := c.do(ctx, http.MethodPost, "/periods", in, &out)
	return out, err
}

// ActivatePeriod makes the period the operative one.
func (c *Client) ActivatePeriod(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/periods/"+url.PathEscape(id)+"/activate", nil, nil)
}

// ClosePeriod submits a closure in a single request.
func (c *Client) ClosePeriod(ctx context.Context, id string, in period.ClosePeriodInput) error {
	if in.ContinuingMemberIDs == nil {
		in.ContinuingMemberIDs = []string{}
	}
	return c.do(ctx, http.MethodPost, "/periods/"+url.PathEscape(id)+"/close", in, nil)
}

// DeletePeriod removes an archived period.
func (c *Client) DeletePeriod(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/periods/"+url.PathEscape(id), nil, nil)
}

// PeriodMembers fetches the roster of a period.
func (c *Client) PeriodMembers(ctx context.Context, id string) ([]period.MemberPeriod, error) {
	var out []period.MemberPeriod
	if err := c.do(ctx, http.MethodGet, "/periods/"+url.PathEscape(id)+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMember enrolls a member into a period.
func (c *Client) AddMember(ctx context.Context, periodID string, in period.EnrollInput) error {
	return c.do(ctx, http.MethodPost, "/periods/"+url.PathEscape(periodID)+"/members", in, nil)
}

// ListScoped fetches a period-scoped collection such as "/projects". The
// query usually comes from a selection scope and may be empty.
func (c *Client) ListScoped(ctx context.Context, resource string, query url.Values, out any) error {
	path := "/" + strings.TrimLeft(resource, "/")
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("periodapi: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.ClearToken()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	case resp.StatusCode == http.StatusNoContent || out == nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("periodapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return defaultErrorMessage
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Detail != "" {
		return body.Detail
	}
	return defaultErrorMessage
}
