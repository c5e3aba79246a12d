// Package llm extracts structured data from markdown content through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"webtap/internal/config"
	"webtap/internal/model"
)

const (
	DefaultModel      = "gpt-4o-mini"
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// ErrNoAPIKey is returned when extraction is attempted without a
// configured provider credential.
var ErrNoAPIKey = errors.New("llm: api key is not configured")

// Request is one extraction call.
type Request struct {
	Markdown string
	Schema   model.Schema
	Model    string
}

// Result is the parsed extraction output.
type Result struct {
	Data  map[string]any
	Model string
	Usage map[string]any
}

// Client is the extraction contract the pipeline is written against.
type Client interface {
	Extract(ctx context.Context, req Request) (Result, error)
}

// openAIClient implements Client over the Chat Completions API.
// Temperature is pinned to zero and the response format forced to
// json_object so extraction stays deterministic and parseable.
type openAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries uint64
	http       *http.Client
}

// NewClient builds the OpenAI-compatible client from config.
func NewClient(cfg config.LLMConfig) Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxRetries := uint64(defaultMaxRetries)
	if cfg.MaxRetries > 0 {
		maxRetries = uint64(cfg.MaxRetries)
	}
	m := cfg.Model
	if m == "" {
		m = DefaultModel
	}
	return &openAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      m,
		maxRetries: maxRetries,
		http:       &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openAIClient) Extract(ctx context.Context, req Request) (Result, error) {
	if c.apiKey == "" {
		return Result{}, ErrNoAPIKey
	}
	if req.Markdown == "" {
		return Result{}, errors.New("llm: markdown content cannot be empty")
	}
	if req.Schema.IsZero() {
		return Result{}, errors.New("llm: schema cannot be empty")
	}

	m := req.Model
	if m == "" {
		m = c.model
	}

	body := chatRequest{
		Model: m,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt()},
			{Role: "user", Content: BuildUserPrompt(req.Schema, req.Markdown)},
		},
		Temperature:    0.0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint += "/chat/completions"

	var out Result
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := c.call(ctx, endpoint, payload, m)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (c *openAIClient) call(ctx context.Context, endpoint string, payload []byte, m string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Network failures and client timeouts are worth another attempt.
		return Result{}, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, retry.RetryableError(fmt.Errorf("llm: rate limit exceeded (status 429)"))
	case resp.StatusCode >= 500:
		return Result{}, retry.RetryableError(fmt.Errorf("llm: chat completion failed with status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, fmt.Errorf("llm: chat completion failed with status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, err
	}
	if len(parsed.Choices) == 0 {
		return Result{}, errors.New("llm: chat completion returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	if content == "" {
		return Result{}, errors.New("llm: chat completion returned empty content")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Result{}, fmt.Errorf("llm: failed to parse JSON response: %w", err)
	}

	out := Result{Data: data, Model: m}
	if parsed.Usage != nil {
		out.Usage = map[string]any{
			"prompt_tokens":     parsed.Usage.PromptTokens,
			"completion_tokens": parsed.Usage.CompletionTokens,
			"total_tokens":      parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}
