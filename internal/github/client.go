// Package github sources candidate quests from the GitHub issue search API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onesmallpr/questboard/internal/models"
)

const userAgent = "OneSmallPR-Questboard"

// SearchOptions configures the issue query
type SearchOptions struct {
	Query   string
	Sort    string
	PerPage int
}

// Client searches GitHub issues
type Client struct {
	baseURL    string
	token      string
	opts       SearchOptions
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithToken sets the API token sent as "Authorization: token ..."
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new search client
func NewClient(baseURL string, opts SearchOptions, options ...Option) *Client {
	if opts.PerPage <= 0 {
		opts.PerPage = 5
	}
	if opts.Sort == "" {
		opts.Sort = "updated"
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    opts,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

type searchResponse struct {
	TotalCount int               `json:"total_count"`
	Items      []models.RawIssue `json:"items"`
}

// Search returns the newest matching issues, most recent first
func (c *Client) Search(ctx context.Context) ([]models.RawIssue, error) {
	params := url.Values{}
	params.Set("q", c.opts.Query)
	params.Set("sort", c.opts.Sort)
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(c.opts.PerPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/issues?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issue search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("github API error: %s", resp.Status)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	return result.Items, nil
}

// HealthCheck verifies the search API is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rate_limit", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("github unhealthy: %s", resp.Status)
	}
	return nil
}

// Type returns the dependency name used in readiness reports
func (c *Client) Type() string {
	return "github"
}
