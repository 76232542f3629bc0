// Package llm is a thin client for an OpenAI-compatible chat completions
// endpoint. It is used for draft rule extraction and decision explanations,
// always from outside the evaluation core: callers bound every call with a
// context deadline and decide themselves what to do on failure. The client
// performs no retries.
//
// The API key is read from the PM_LLM_API_KEY environment variable and from
// nowhere else. Configuration files never carry credentials.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// APIKeyEnv names the environment variable holding the bearer token for the
// completions endpoint. An empty value is allowed: local inference servers
// commonly run without authentication.
const APIKeyEnv = "PM_LLM_API_KEY"

const (
	defaultTimeout     = 60 * time.Second
	completionsPath    = "/v1/chat/completions"
	maxErrorBodyBytes  = 512
	maxResponseBytes   = 1 << 20
	defaultTemperature = 0.0
)

// Config carries the non-secret client settings. There is deliberately no
// APIKey field; the key always comes from the process environment.
type Config struct {
	// BaseURL is the server root, e.g. "https://api.openai.com" or
	// "http://localhost:8080". The chat completions path is appended.
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout bounds a single completion round trip. Zero means the
	// default of one minute. Callers may tighten further per call via
	// the request context.
	Timeout time.Duration
}

// Client talks to one completions endpoint with one model.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client from cfg, reading the API key from the
// environment. A missing key is logged and tolerated.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm-client")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiKey := os.Getenv(APIKeyEnv)
	if apiKey == "" {
		logger.Warn("no API key in environment, sending unauthenticated requests", "env", APIKeyEnv)
	}

	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  apiKey,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger,
	}, nil
}

// Model reports the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// chatRequest is the OpenAI-compatible completions request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a system and user message and returns the assistant reply
// as plain text, trimmed.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// CompleteJSON is Complete with the response format pinned to a JSON object,
// for callers that parse the reply.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, &responseFormat{Type: "json_object"})
}

func (c *Client) complete(ctx context.Context, system, user string, format *responseFormat) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    defaultTemperature,
		ResponseFormat: format,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshaling request: %w", err)
	}

	url := c.baseURL + completionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, body)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: response contained no choices")
	}

	c.logger.Debug("completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
	)

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// statusError extracts the server's error message when the body follows the
// OpenAI error envelope, otherwise quotes a truncated raw body.
func statusError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("llm: completion failed: status %d: %s", status, e.Error.Message)
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	if raw == "" {
		return fmt.Errorf("llm: completion failed: status %d", status)
	}
	return fmt.Errorf("llm: completion failed: status %d: %s", status, raw)
}
