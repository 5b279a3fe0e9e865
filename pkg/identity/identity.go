// Package identity resolves bearer tokens to an authenticated caller via the
// platform's identity service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
)

// Caller is the authenticated identity and tenant binding for one request.
type Caller struct {
	UserID     string `json:"userId"`
	BusinessID string `json:"businessId"`
}

// Verifier turns a bearer token into a Caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (Caller, error)
}

type Config struct {
	URL     string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

// Client is an HTTP Verifier against the identity service's verify endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

const maxVerifyResponseBytes = 64 << 10

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("identity service url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid identity service url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Client) Verify(ctx context.Context, token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, fmt.Errorf("%w: missing bearer token", contractx.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/verify", nil)
	if err != nil {
		return Caller{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Caller{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseBytes))
	if err != nil {
		return Caller{}, fmt.Errorf("read verify response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Caller{}, fmt.Errorf("%w: token rejected", contractx.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return Caller{}, fmt.Errorf("identity service status=%d body=%s", resp.StatusCode, string(raw))
	}

	var caller Caller
	if err := json.Unmarshal(raw, &caller); err != nil {
		return Caller{}, fmt.Errorf("decode verify response: %w", err)
	}
	if caller.UserID == "" || caller.BusinessID == "" {
		return Caller{}, fmt.Errorf("%w: identity service returned incomplete caller", contractx.ErrUnauthorized)
	}
	return caller, nil
}
