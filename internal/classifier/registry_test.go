package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	path   string
	closed atomic.Bool
}

func (s *stubBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return CompletionResult{Text: "stub:" + s.path, FinishReason: "stop"}, nil
}

func (s *stubBackend) Health(ctx context.Context) error { return nil }

func (s *stubBackend) Close() error {
	s.closed.Store(true)
	return nil
}

func countingLoader(loadCount *atomic.Int32, created map[string]*stubBackend, mu *sync.Mutex) Loader {
	return func(ctx context.Context, path string) (Backend, error) {
		loadCount.Add(1)

		b := &stubBackend{path: path}

		mu.Lock()
		created[path] = b
		mu.Unlock()

		return b, nil
	}
}

func TestRegistry_CachesByPath(t *testing.T) {
	var loadCount atomic.Int32

	var mu sync.Mutex

	created := make(map[string]*stubBackend)
	reg := NewRegistry(countingLoader(&loadCount, created, &mu))

	b1, err := reg.Get(context.Background(), "model-a")
	require.NoError(t, err)

	b2, err := reg.Get(context.Background(), "model-a")
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, int32(1), loadCount.Load())
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	var loadCount atomic.Int32

	var mu sync.Mutex

	created := make(map[string]*stubBackend)
	reg := NewRegistry(countingLoader(&loadCount, created, &mu))

	ctx := context.Background()
	_, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "b")
	require.NoError(t, err)
	// touch "a" so "b" becomes the LRU victim
	_, err = reg.Get(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, DefaultCapacity, reg.Len())

	mu.Lock()
	bEvicted := created["b"].closed.Load()
	aEvicted := created["a"].closed.Load()
	mu.Unlock()

	assert.True(t, bEvicted, "least-recently-used handle should be released")
	assert.False(t, aEvicted, "recently-touched handle should survive")
}

func TestRegistry_SerializesConcurrentLoadsForSamePath(t *testing.T) {
	var loadCount atomic.Int32

	var mu sync.Mutex

	created := make(map[string]*stubBackend)
	reg := NewRegistry(countingLoader(&loadCount, created, &mu))

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := reg.Get(context.Background(), "shared-path")
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), loadCount.Load())
}

func TestRegistry_LoaderError(t *testing.T) {
	reg := NewRegistry(func(ctx context.Context, path string) (Backend, error) {
		return nil, fmt.Errorf("cannot open model")
	})

	_, err := reg.Get(context.Background(), "bad-path")
	require.Error(t, err)
}
