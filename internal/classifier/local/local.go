// Package local implements a classifier backend for locally-hosted models
// addressed by filesystem path; the classifier Loader uses it for every
// classifier path without the "openai:" prefix. It speaks a generate-style
// HTTP API against a local inference server.
package local

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

// Config holds the local backend configuration.
type Config struct {
	// Endpoint is the local server's base URL (e.g. http://localhost:11434).
	Endpoint string
	// ModelPath content-addresses the model on disk.
	ModelPath string
}

// Backend is a local completion backend. A fresh Backend is created per
// model path by the registry's loader — this is what "loading" a model
// means at this layer (spec §4.1: "First call with a given path loads the
// model with context length 2048 and deterministic settings").
type Backend struct {
	baseURL    string
	modelPath  string
	httpClient *http.Client
}

const contextLength = 2048

// New creates a backend bound to one model path and fails if the local
// server does not pass Health. Only the server is checked: a model path the
// server does not know is not detected here, only by a later Complete.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("local endpoint is required")
	}

	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}

	b := &Backend{
		baseURL:   cfg.Endpoint,
		modelPath: cfg.ModelPath,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}

	if err := b.Health(ctx); err != nil {
		return nil, fmt.Errorf("cannot open model %s: %w", cfg.ModelPath, err)
	}

	return b, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumCtx      int      `json:"num_ctx"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

// Complete runs one deterministic (temperature forced by caller, context
// length fixed at 2048) completion against the local server.
func (b *Backend) Complete(ctx context.Context, req classifier.CompletionRequest) (classifier.CompletionResult, error) {
	genReq := generateRequest{
		Model:  b.modelPath,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			NumCtx:      contextLength,
			Temperature: req.Temperature,
			Stop:        req.StopTokens,
			NumPredict:  req.MaxTokens,
		},
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := b.baseURL + "/api/generate"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return classifier.CompletionResult{}, fmt.Errorf("local classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return classifier.CompletionResult{}, fmt.Errorf("decode response: %w", err)
	}

	finish := parsed.DoneReason
	if finish == "" && parsed.Done {
		finish = "stop"
	}

	return classifier.CompletionResult{
		Text:         parsed.Response,
		FinishReason: finish,
	}, nil
}

// Health checks that the local server is reachable (GET /api/tags returns
// 200). It does not check that the backend's model is available.
func (b *Backend) Health(ctx context.Context) error {
	url := b.baseURL + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local classifier health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	return nil
}
