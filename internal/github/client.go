package github

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
)

// RateLimitInfo holds information about GitHub API rate limits
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
	// Set from Retry-After on secondary limits
	SecondaryLimitReset time.Time
}

// Client looks up repository metadata on the GitHub API
type Client struct {
	client  *http.Client
	baseURL string
	logger  *logrus.Logger

	mu            sync.Mutex
	rateLimitInfo RateLimitInfo

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// ClientOption allows configuring the GitHub client
type ClientOption func(*Client)

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
		c.maxBackoff = maxBackoff
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a GitHub client. Requests are authenticated only when a token is configured.
func NewClient(cfg config.GitHubConfig, logger *logrus.Logger, opts ...ClientOption) *Client {
	httpClient := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = 30 * time.Second

	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	c := &Client{
		client:         httpClient,
		baseURL:        baseURL,
		logger:         logger,
		maxRetries:     cfg.RateLimit.MaxRetries,
		initialBackoff: cfg.RateLimit.InitialBackoff.Duration(),
		maxBackoff:     cfg.RateLimit.MaxBackoff.Duration(),
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = time.Second
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultBranch returns the default branch of owner/name
func (c *Client) DefaultBranch(ctx context.Context, owner, name string) (string, error) {
	if owner == "" {
		return "", &ArgumentError{Field: "owner", Reason: "cannot be empty"}
	}
	if name == "" {
		return "", &ArgumentError{Field: "name", Reason: "cannot be empty"}
	}

	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name)
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.doRequestWithBackoff(ctx, url, &repo); err != nil {
		var apiErr *APIError
		if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", &RepositoryNotFoundError{Owner: owner, Name: name}
		}
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "", &APIError{StatusCode: http.StatusOK, Body: "response has no default_branch"}
	}
	return repo.DefaultBranch, nil
}

// RateLimit returns the last rate limit state reported by the API
func (c *Client) RateLimit() RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimitInfo
}

func (c *Client) updateRateLimitInfo(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		c.rateLimitInfo.Limit, _ = strconv.Atoi(limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.rateLimitInfo.Remaining, _ = strconv.Atoi(remaining)
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if resetTime, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateLimitInfo.ResetTime = time.Unix(resetTime, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if retrySeconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			c.rateLimitInfo.SecondaryLimitReset = time.Now().Add(time.Duration(retrySeconds) * time.Second)
		}
	}
}

// rateLimitWait returns how long to wait before the limit resets, capped at maxBackoff.
func (c *Client) rateLimitWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	reset := c.rateLimitInfo.ResetTime
	if c.rateLimitInfo.SecondaryLimitReset.After(reset) {
		reset = c.rateLimitInfo.SecondaryLimitReset
	}
	wait := time.Until(reset)
	if wait <= 0 {
		return c.initialBackoff
	}
	if wait > c.maxBackoff {
		return c.maxBackoff
	}
	return wait
}

func (c *Client) rateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// doRequestWithBackoff performs a GET with exponential backoff on server errors and rate limits
func (c *Client) doRequestWithBackoff(ctx context.Context, url string, result interface{}) error {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(c.maxBackoff)))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &APIError{Err: err}
			c.logger.Warnf("GitHub request attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.updateRateLimitInfo(resp)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if c.rateLimited(resp) {
			info := c.RateLimit()
			lastErr = &RateLimitError{ResetAt: info.ResetTime, Limit: info.Limit, Remaining: info.Remaining}
			backoff = c.rateLimitWait()
			c.logger.Warnf("GitHub rate limit exceeded. Waiting %v before retry", backoff)
			continue
		}
		if err != nil {
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: "failed to read response body", Err: err}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if !apiErr.Retryable() {
				return apiErr
			}
			lastErr = apiErr
			continue
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return &APIError{StatusCode: resp.StatusCode, Body: "failed to decode response", Err: err}
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
