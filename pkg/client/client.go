// Package client implements the upstream transport for chat sessions:
// an OpenAI-compatible chat completions client with synchronous and
// streaming modes. Multimodal image references are inlined as base64
// data URLs before the request leaves the process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/agent"
	"github.com/papercomputeco/banter/pkg/llm"
)

// DefaultTimeout bounds non-streaming requests. LLM replies can be
// slow, especially with long prompts.
const DefaultTimeout = 2 * time.Minute

// chatCompletionsPath is the OpenAI-compatible completions endpoint,
// relative to the configured base URL.
const chatCompletionsPath = "/chat/completions"

// ErrNoAPIKey is returned when the client has no API key configured.
var ErrNoAPIKey = errors.New("API key not configured")

// APIError is a non-2xx reply from the upstream API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, e.Message)
}

// Config is the upstream API configuration.
type Config struct {
	// BaseURL of the OpenAI-compatible API, without the
	// /chat/completions suffix.
	BaseURL string

	// APIKey sent as a bearer token.
	APIKey string

	// Model identifier (e.g., "qwen-vl-max").
	Model string

	// Temperature for generation. Zero is sent as-is.
	Temperature float64

	// MaxTokens caps the reply length when positive.
	MaxTokens int

	// Timeout for non-streaming requests; DefaultTimeout when zero.
	// Streaming requests are bounded by their context instead.
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions API. It
// implements agent.Transport.
type Client struct {
	config Config
	logger *zap.Logger

	httpClient *http.Client
	// streamClient has no client-side timeout; streaming lifetime is
	// controlled through the request context.
	streamClient *http.Client
}

var _ agent.Transport = (*Client)(nil)

// New creates a Client for the given upstream.
func New(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:       config,
		logger:       logger,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// Chat sends the messages and returns the complete reply.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	formatted, err := encodeMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}

	reqBody, err := json.Marshal(llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    formatted,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	c.logger.Debug("sending chat request",
		zap.String("model", c.config.Model),
		zap.Int("message_count", len(formatted)),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := c.newRequest(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.apiError(httpResp.StatusCode, body)
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Debug("received chat response",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return &resp, nil
}

// newRequest builds a POST to the completions endpoint with auth and
// content-type headers set.
func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + chatCompletionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	return req, nil
}

// apiError maps an error body to an *APIError, falling back to the raw
// body when it is not the expected JSON shape.
func (c *Client) apiError(status int, body []byte) error {
	var er llm.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return &APIError{Status: status, Code: er.Error.Code, Message: er.Error.Message}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return &APIError{Status: status, Message: msg}
}
