package classifier

import (
	"context"
	"sync"

	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
)

var registryLog = logging.WithComponent("classifier")

// Loader constructs a Backend for a content-addressed model path.
type Loader func(ctx context.Context, path string) (Backend, error)

type loadState struct {
	done    chan struct{}
	backend Backend
	err     error
}

// Registry is the bounded-LRU handle cache described in spec §4.1: models
// are content-addressed by path, loading is serialized per path, and at
// most Capacity handles are held at once — the least-recently-used handle
// is released on overflow before the new one is acquired.
type Registry struct {
	mu       sync.Mutex
	capacity int
	load     Loader

	handles map[string]Backend
	// order holds paths from least- to most-recently-used.
	order   []string
	loading map[string]*loadState
}

// DefaultCapacity is the registry's bounded size (spec §4.1: "N=2").
const DefaultCapacity = 2

// NewRegistry creates a handle registry backed by the given Loader.
func NewRegistry(loader Loader) *Registry {
	return &Registry{
		capacity: DefaultCapacity,
		load:     loader,
		handles:  make(map[string]Backend),
		loading:  make(map[string]*loadState),
	}
}

// Get returns the cached Backend for path, loading it on first use.
// Concurrent Get calls for the same path that has not yet finished loading
// block on the single in-flight load rather than loading twice.
func (r *Registry) Get(ctx context.Context, path string) (Backend, error) {
	r.mu.Lock()

	if b, ok := r.handles[path]; ok {
		r.touchLocked(path)
		r.mu.Unlock()

		return b, nil
	}

	if ls, ok := r.loading[path]; ok {
		r.mu.Unlock()
		<-ls.done

		return ls.backend, ls.err
	}

	ls := &loadState{done: make(chan struct{})}
	r.loading[path] = ls
	// Release the least-recently-used handle before acquiring the new one.
	r.evictLocked(r.capacity - 1)
	r.mu.Unlock()

	backend, err := r.load(ctx, path)
	if err != nil {
		err = proxyerr.ClassifierUnavailable(path, err)
	}

	ls.backend, ls.err = backend, err
	close(ls.done)

	r.mu.Lock()
	delete(r.loading, path)

	if err == nil {
		r.insertLocked(path, backend)
	}

	r.mu.Unlock()

	return backend, err
}

// insertLocked adds a freshly-loaded handle, then evicts least-recently
// used handles while the registry is over capacity (concurrent loads of
// different paths can each have made room for themselves). Must be called
// with mu held.
func (r *Registry) insertLocked(path string, backend Backend) {
	if existing, ok := r.handles[path]; ok {
		// A concurrent loader for a different path can't race us here
		// since loads are keyed by path, but guard anyway.
		_ = existing.Close()
	}

	r.handles[path] = backend
	r.touchLocked(path)
	r.evictLocked(r.capacity)
}

// evictLocked releases least-recently-used handles until at most keep
// remain. Must be called with mu held.
func (r *Registry) evictLocked(keep int) {
	for len(r.order) > keep {
		victim := r.order[0]
		r.order = r.order[1:]

		if v, ok := r.handles[victim]; ok {
			delete(r.handles, victim)

			if err := v.Close(); err != nil {
				registryLog.Warn("error releasing evicted classifier handle", "path", victim, "error", err)
			}

			metrics.ClassifierCacheEvictionsTotal.Inc()
		}
	}
}

// touchLocked moves path to the most-recently-used end of the LRU order.
// Must be called with mu held.
func (r *Registry) touchLocked(path string) {
	for i, p := range r.order {
		if p == path {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.order = append(r.order, path)
}

// Len reports how many handles are currently cached (test/observability use).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// Close releases every cached handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error

	for path, b := range r.handles {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		delete(r.handles, path)
	}

	r.order = nil

	return firstErr
}
