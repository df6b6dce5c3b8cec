// Package openai implements a classifier backend that speaks the
// OpenAI-compatible chat/completions API; the classifier Loader uses it for
// classifier paths of the form "openai:<model>".
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cortexrouter/semantic-proxy/internal/classifier"
)

// Config holds the OpenAI-compatible backend configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Backend is an OpenAI-compatible completion backend.
type Backend struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a new OpenAI-compatible backend.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	return &Backend{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat-completion request with a single user message
// carrying the classifier prompt.
func (b *Backend) Complete(ctx context.Context, req classifier.CompletionRequest) (classifier.CompletionResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:       b.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.StopTokens,
	})
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := b.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return classifier.CompletionResult{}, fmt.Errorf("openai classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return classifier.CompletionResult{}, fmt.Errorf("no choices in response")
	}

	return classifier.CompletionResult{
		Text:         parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

// Health reports whether the backend is configured with an API key. It
// makes no network call, so it does not check that the server is reachable.
func (b *Backend) Health(ctx context.Context) error {
	if b.apiKey == "" {
		return fmt.Errorf("API key is not configured")
	}

	return nil
}

// Close releases resources held by the backend. The backend's own
// http.Client has nothing to release explicitly.
func (b *Backend) Close() error {
	return nil
}
