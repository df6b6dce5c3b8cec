package classifier

import (
	"context"
	"time"

	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
)

// Runtime is the C1 capability signal computers depend on: complete(path,
// prompt, ...) -> text. It owns the bounded handle registry.
type Runtime struct {
	registry *Registry
}

// NewRuntime creates a Runtime backed by the given per-path backend factory,
// mirroring the teacher's createClient dispatch-by-type switch generalized
// from lane/engine construction to classifier handle construction.
func NewRuntime(newBackend Loader) *Runtime {
	return &Runtime{registry: NewRegistry(newBackend)}
}

// Complete runs one completion for modelPath, loading/caching the backend
// as needed. Returns InferenceError if the backend returns no text.
func (rt *Runtime) Complete(ctx context.Context, modelPath string, req CompletionRequest) (CompletionResult, error) {
	backend, err := rt.registry.Get(ctx, modelPath)
	if err != nil {
		return CompletionResult{}, err
	}

	start := time.Now()
	result, err := backend.Complete(ctx, req)
	metrics.ClassifierCompletionDuration.WithLabelValues(modelPath).Observe(time.Since(start).Seconds())

	if err != nil {
		return CompletionResult{}, proxyerr.InferenceError("completion failed for "+modelPath, err)
	}

	if result.Text == "" {
		return CompletionResult{}, proxyerr.InferenceError("empty completion for "+modelPath, nil)
	}

	return result, nil
}

// Close releases all cached handles.
func (rt *Runtime) Close() error {
	return rt.registry.Close()
}
