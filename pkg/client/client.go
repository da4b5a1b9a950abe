// Package client is a Go SDK for the questboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onesmallpr/questboard/internal/models"
)

// Client is a Go SDK for questboard API
type Client struct {
	baseURL    string
	apiKey     string
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

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets the admin key sent with every request
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a new questboard client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// quiz and protocol generation wait on the model
			Timeout: 90 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a failure reported by the API envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListOptions filters a quest listing
type ListOptions struct {
	Rank    string
	Element string
	Label   string
}

// SnapshotInfo describes one persisted catalog snapshot
type SnapshotInfo struct {
	ID          int64     `json:"id"`
	RefreshedAt time.Time `json:"refreshedAt"`
	QuestCount  int       `json:"questCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SnapshotList is the snapshot history payload
type SnapshotList struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
	Total     int            `json:"total"`
}

// Download is a protocol served as a file
type Download struct {
	Filename string
	Content  []byte
}

// ListQuests retrieves the quest board
func (c *Client) ListQuests(ctx context.Context, opts ListOptions) (*models.ListResponse, error) {
	q := url.Values{}
	if opts.Rank != "" {
		q.Set("rank", opts.Rank)
	}
	if opts.Element != "" {
		q.Set("element", opts.Element)
	}
	if opts.Label != "" {
		q.Set("label", opts.Label)
	}

	path := "/api/v1/quests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result models.ListResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetQuest retrieves a quest by ID
func (c *Client) GetQuest(ctx context.Context, id string) (*models.Quest, error) {
	var quest models.Quest
	if err := c.call(ctx, http.MethodGet, questPath(id, ""), nil, &quest); err != nil {
		return nil, err
	}
	return &quest, nil
}

// Refresh forces a catalog rebuild
func (c *Client) Refresh(ctx context.Context) (*models.RefreshResponse, error) {
	var result models.RefreshResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/quests/refresh", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Assessment generates the trial for a quest
func (c *Client) Assessment(ctx context.Context, id, skillLevel string) ([]models.QuizItem, error) {
	var result models.AssessmentResponse
	req := models.GenerateRequest{SkillLevel: skillLevel}
	if err := c.call(ctx, http.MethodPost, questPath(id, "/assessment"), req, &result); err != nil {
		return nil, err
	}
	return result.Questions, nil
}

// Protocol generates the guidance document for a quest
func (c *Client) Protocol(ctx context.Context, id, skillLevel string) (*models.Protocol, error) {
	var result models.Protocol
	req := models.GenerateRequest{SkillLevel: skillLevel}
	if err := c.call(ctx, http.MethodPost, questPath(id, "/protocol"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadProtocol fetches the protocol document as a markdown file
func (c *Client) DownloadProtocol(ctx context.Context, id, skillLevel string) (*Download, error) {
	path := questPath(id, "/protocol/download")
	if skillLevel != "" {
		path += "?skillLevel=" + url.QueryEscape(skillLevel)
	}

	resp, status, header, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, decodeError(status, resp)
	}

	filename := "OSP-" + id + ".md"
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, after, ok := strings.Cut(cd, `filename="`); ok {
			filename = strings.TrimSuffix(after, `"`)
		}
	}

	return &Download{Filename: filename, Content: resp}, nil
}

// Accept submits trial answers for a quest
func (c *Client) Accept(ctx context.Context, id string, answers []int) (*models.AcceptResponse, error) {
	var result models.AcceptResponse
	req := models.AcceptRequest{Answers: answers}
	if err := c.call(ctx, http.MethodPost, questPath(id, "/accept"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Snapshots lists persisted catalog snapshots, newest first
func (c *Client) Snapshots(ctx context.Context, limit int) (*SnapshotList, error) {
	path := "/api/v1/admin/snapshots"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var result SnapshotList
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PurgeCache drops cached generations and returns the number of removed keys
func (c *Client) PurgeCache(ctx context.Context) (int, error) {
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := c.call(ctx, http.MethodDelete, "/api/v1/admin/cache", nil, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func questPath(id, suffix string) string {
	return "/api/v1/quests/" + url.PathEscape(id) + suffix
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, status, _, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, resp)
	}

	var result envelope
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		return envelopeError(status, &result)
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var result envelope
	if err := json.Unmarshal(body, &result); err != nil || result.Error == nil {
		return &APIError{StatusCode: status, Code: "http_error", Message: strings.TrimSpace(string(body))}
	}
	return envelopeError(status, &result)
}

func envelopeError(status int, result *envelope) error {
	if result.Error == nil {
		return &APIError{StatusCode: status, Code: "unknown", Message: "request was not successful"}
	}
	return &APIError{StatusCode: status, Code: result.Error.Code, Message: result.Error.Message}
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, resp.Header, nil
}
