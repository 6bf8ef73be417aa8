package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mkohlmann/cadence/internal/logger"
)

// Common errors
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable (circuit open)")
	ErrUnauthorized        = errors.New("unauthorized after token refresh")
	ErrProfileNotFound     = errors.New("profile not found")
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// TokenProvider supplies bearer tokens and refreshes them when the backend
// rejects one. Implemented outside this package (secure storage is an
// external collaborator).
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// Client talks to the backend content API
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	breaker *Breaker
}

// NewClient creates a content API client. tokens may be nil for anonymous
// endpoints (tests, public feeds).
func NewClient(baseURL string, timeout time.Duration, tokens TokenProvider) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		breaker: NewBreaker(breakerThreshold, breakerCooldown),
	}
}

// ListContent fetches one page of the content feed, optionally filtered by
// content type ("" means all types).
func (c *Client) ListContent(ctx context.Context, contentType string, page, pageSize int) ([]Content, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	if contentType != "" {
		query.Set("type", contentType)
	}

	var result struct {
		Items []Content `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/content", query, &result); err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return result.Items, nil
}

// GetProfile fetches a user profile by its opaque id
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userID), nil, &profile)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return &profile, nil
}

// errNotFound marks a 404 internally so callers can map it per endpoint
var errNotFound = errors.New("not found")

// getJSON performs an authenticated GET and decodes the JSON body into out.
// A 401/402 triggers one token refresh followed by a single retry.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if !c.breaker.Allow() {
		return ErrUpstreamUnavailable
	}

	resp, err := c.do(ctx, path, query)
	if err != nil {
		c.breaker.Failure()
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusPaymentRequired {
		drain(resp)

		if c.tokens == nil {
			c.breaker.Success() // the upstream is healthy, the token is not
			return ErrUnauthorized
		}

		logger.Log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Token rejected, refreshing and retrying once")

		if err := c.tokens.Refresh(ctx); err != nil {
			c.breaker.Success()
			return fmt.Errorf("token refresh: %w", err)
		}

		resp, err = c.do(ctx, path, query)
		if err != nil {
			c.breaker.Failure()
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusPaymentRequired {
			drain(resp)
			c.breaker.Success()
			return ErrUnauthorized
		}
	}

	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.Success()
		return errNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.breaker.Failure()
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.breaker.Failure()
		return fmt.Errorf("decode response from %s: %w", path, err)
	}

	c.breaker.Success()
	return nil
}

// do builds and issues one GET request with the current bearer token
func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	return resp, nil
}

// drain discards and closes a response body so the connection can be reused
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
