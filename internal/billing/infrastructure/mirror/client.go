// Package mirror pushes subscription state to the mirrored profile store
// over its REST interface.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	maxErrorBody            = 4 << 10
)

// ErrMirrorUnavailable is returned while the circuit breaker is open.
var ErrMirrorUnavailable = errors.New("profile mirror unavailable")

// StatusError is a non-2xx mirror response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("profile mirror update failed: status=%d body=%s", e.StatusCode, e.Body)
}

// Config configures the mirror client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// TokenSource adds a bearer token to every request when set.
	TokenSource oauth2.TokenSource

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
}

// ClientCredentials configures an OAuth2 client credentials grant.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// TokenSource returns a caching token source, or nil when the grant is not configured.
func (c ClientCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.ClientID == "" || c.TokenURL == "" {
		return nil
	}
	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return cfg.TokenSource(ctx)
}

// Client implements application.ProfileMirror.
type Client struct {
	baseURL    string
	apiKey     string
	hasToken   bool
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
}

var _ application.ProfileMirror = (*Client)(nil)

// NewClient creates a mirror client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("mirror base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid mirror base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.TokenSource != nil {
		transport = &oauth2.Transport{Source: cfg.TokenSource, Base: transport}
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		hasToken: cfg.TokenSource != nil,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "profile-mirror",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about mirror health
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// UpdateProfile PATCHes the profile row of userID.
func (c *Client) UpdateProfile(ctx context.Context, userID uuid.UUID, patch application.ProfilePatch) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.patchProfile(ctx, userID, patch)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrMirrorUnavailable, err)
	}
	return err
}

// State reports the breaker state.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) patchProfile(ctx context.Context, userID uuid.UUID, patch application.ProfilePatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/profiles?id=eq.%s", c.baseURL, url.QueryEscape(userID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		if !c.hasToken {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return responseError(resp)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
