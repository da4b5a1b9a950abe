// Package llm provides the chat-completion client used for issue analysis,
// quiz generation and protocol generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrNoAPIKey is returned when no API key is configured
var ErrNoAPIKey = errors.New("llm api key is not set")

// Completer produces a text completion for a system and user prompt
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config contains configuration for creating a new Client
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Client wraps the Anthropic SDK client with usage tracking
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	usage     *Usage
}

// NewClient creates a new chat-completion client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		usage:     &Usage{},
	}, nil
}

// Complete makes a single call without tools and returns the concatenated text blocks
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	c.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return b.String(), nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return string(c.model)
}

// Usage returns the token usage tracker
func (c *Client) Usage() *Usage {
	return c.usage
}

// Usage tracks token consumption across calls
type Usage struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// Add records token usage from a call
func (u *Usage) Add(input, output int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inputTok += input
	u.outputTok += output
	u.calls++
}

// Totals returns input tokens, output tokens and call count
func (u *Usage) Totals() (int64, int64, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inputTok, u.outputTok, u.calls
}

// Unavailable is a Completer that always fails. It stands in when no API key
// is configured so every caller degrades to its fallback.
type Unavailable struct{}

// Complete always returns ErrNoAPIKey
func (Unavailable) Complete(context.Context, string, string) (string, error) {
	return "", ErrNoAPIKey
}
