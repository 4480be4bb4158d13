// Package reporting forwards authorized report queries to the upstream
// reporting API.
package reporting

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

	"go.uber.org/zap"
)

// Upstream endpoint names, relative to the configured base URL.
const (
	EndpointDailyActions  = "dailyactions"
	EndpointPlayerDetails = "playerdetails"
	EndpointTransactions  = "transactions"
	EndpointPlayerGames   = "playergames"
	EndpointPlayerSummary = "playersummary"
	EndpointIncomeAccess  = "data/incomeaccess"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 64 << 20

var (
	// ErrUpstream is wrapped by every upstream failure.
	ErrUpstream = errors.New("reporting: upstream request failed")

	ErrUpstreamAuth        = fmt.Errorf("%w: unauthorized", ErrUpstream)
	ErrUpstreamNotFound    = fmt.Errorf("%w: not found", ErrUpstream)
	ErrUpstreamBadRequest  = fmt.Errorf("%w: bad request", ErrUpstream)
	ErrUpstreamUnavailable = fmt.Errorf("%w: unavailable", ErrUpstream)
)

// Client fetches report rows from the upstream API.
type Client interface {
	Fetch(ctx context.Context, endpoint string, payload any) (json.RawMessage, error)
}

// Config holds the upstream connection settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// HTTPClient overrides the transport; a client with Timeout is built when nil.
	HTTPClient *http.Client
}

// HTTPClient calls the upstream API with HTTP Basic authentication.
type HTTPClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an upstream client
func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("reporting: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("reporting: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Fetch POSTs payload as JSON to endpoint and returns the raw response body.
func (c *HTTPClient) Fetch(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("reporting: encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reporting: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUpstreamUnavailable, endpoint, err)
	}

	c.logger.Debug("Upstream report call",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(data)))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", statusError(resp.StatusCode), endpoint, resp.StatusCode)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s returned a non-JSON body", ErrUpstream, endpoint)
	}
	return json.RawMessage(data), nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUpstreamAuth
	case status == http.StatusNotFound:
		return ErrUpstreamNotFound
	case status == http.StatusBadRequest:
		return ErrUpstreamBadRequest
	case status >= 500:
		return ErrUpstreamUnavailable
	default:
		return ErrUpstream
	}
}
