// Package classifier provides the local-model completion capability that
// signal computers use to produce observations about request content
// (spec §4.1). Models are content-addressed by filesystem/config path and
// cached behind a bounded LRU registry.
package classifier

import "context"

// CompletionRequest is one text-in completion request.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	StopTokens  []string
}

// CompletionResult is the raw text-out of a completion call.
type CompletionResult struct {
	Text         string
	FinishReason string
}

// Backend is the injected capability a concrete completion provider
// implements — the real implementation wraps a local or remote HTTP
// completion API, the test implementation is a deterministic stub (spec
// §9 "Classifier as capability").
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Health(ctx context.Context) error
	Close() error
}
