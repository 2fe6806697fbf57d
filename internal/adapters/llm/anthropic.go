package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
)

const (
	// DefaultBaseURL is the Messages API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1/messages"
	// DefaultModel answers both intent and narrative prompts.
	DefaultModel = "claude-sonnet-4-20250514"
	// DefaultMaxTokens bounds one completion.
	DefaultMaxTokens = 2000
	// APIVersion is sent as anthropic-version.
	APIVersion = "2023-06-01"

	defaultTimeout = 60 * time.Second
)

// ErrNoAPIKey is returned by a Client built without a key.
var ErrNoAPIKey = errors.New("llm api key not configured")

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens overrides the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// Client implements ports.Completer over the Anthropic Messages API.
type Client struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	http      *http.Client
}

// NewClient creates a completer. It returns nil when apiKey is empty so
// callers fall back to their deterministic path.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		return nil
	}
	c := &Client{
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one user turn with the given system prompt and returns the
// concatenated text blocks of the answer.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	req := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": APIVersion,
	}

	var resp messagesResponse
	if err := upstream.PostJSON(ctx, c.http, c.baseURL, headers, req, &resp); err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("llm completion: empty answer (stop reason %q)", resp.StopReason)
	}
	return text, nil
}
