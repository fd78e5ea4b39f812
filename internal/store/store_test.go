package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "api_keys")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "api_keys", `["a","b"]`))
			v, ok, err := s.Get(ctx, "api_keys")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `["a","b"]`, v)

			require.NoError(t, s.Set(ctx, "api_keys", `["c"]`))
			v, _, _ = s.Get(ctx, "api_keys")
			assert.Equal(t, `["c"]`, v)

			require.NoError(t, s.Delete(ctx, "api_keys"))
			_, ok, err = s.Get(ctx, "api_keys")
			require.NoError(t, err)
			assert.False(t, ok)

			// Deleting twice is fine.
			assert.NoError(t, s.Delete(ctx, "api_keys"))
		})
	}
}

func TestStore_GetMany(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "a", "1"))
			require.NoError(t, s.Set(ctx, "b", "2"))

			got, err := s.GetMany(ctx, []string{"a", "b", "missing"})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

			empty, err := s.GetMany(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_IncrIsSeparateKeyspace(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "pool_key_index", "not-a-number"))

			n, err := s.Incr(ctx, "pool_key_index")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = s.Incr(ctx, "pool_key_index")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			v, ok, _ := s.Get(ctx, "pool_key_index")
			assert.True(t, ok)
			assert.Equal(t, "not-a-number", v)
		})
	}
}

func TestStore_IncrConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 20
			seen := make(chan int64, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, err := s.Incr(ctx, "counter")
					assert.NoError(t, err)
					seen <- n
				}()
			}
			wg.Wait()
			close(seen)

			unique := make(map[int64]bool)
			for n := range seen {
				unique[n] = true
			}
			assert.Len(t, unique, workers)
		})
	}
}

func TestSQLite_EmptyPath(t *testing.T) {
	_, err := NewSQLite("")
	assert.Error(t, err)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "fallback_key", "fb-1"))
	_, err = s.Incr(ctx, "pool_key_index")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "fallback_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fb-1", v)

	n, err := s.Incr(ctx, "pool_key_index")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
