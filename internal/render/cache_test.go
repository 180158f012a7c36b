package render

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetCacheMemoisesSuccess(t *testing.T) {
	resolver := newMapResolver(map[string]image.Image{"a": solid(red, 1, 1)})
	cache := NewAssetCache(resolver)

	for i := 0; i < 3; i++ {
		img, err := cache.Get(context.Background(), "a")
		require.NoError(t, err)
		require.NotNil(t, img)
	}
	assert.Equal(t, 1, resolver.calls["a"])
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	_, err := cache.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls["a"])
}

func TestAssetCacheRetriesFailures(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	cache := NewAssetCache(AssetResolverFunc(func(context.Context, string) (image.Image, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return solid(red, 1, 1), nil
	}))

	_, err := cache.Get(context.Background(), "flaky")
	require.ErrorIs(t, err, boom)

	img, err := cache.Get(context.Background(), "flaky")
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAssetCacheNilResolver(t *testing.T) {
	_, err := NewAssetCache(nil).Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestAssetCacheNilImageIsNotFound(t *testing.T) {
	cache := NewAssetCache(AssetResolverFunc(func(context.Context, string) (image.Image, error) {
		return nil, nil
	}))
	_, err := cache.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestAssetCacheConcurrentGetSharesLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	cache := NewAssetCache(AssetResolverFunc(func(context.Context, string) (image.Image, error) {
		calls.Add(1)
		<-release
		return solid(red, 1, 1), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Get(context.Background(), "shared")
		}()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.Equal(t, 1, cache.Len())
	_, err := cache.Get(context.Background(), "shared")
	require.NoError(t, err)
}

func TestAssetCacheLoad(t *testing.T) {
	resolver := AssetResolverFunc(func(_ context.Context, path string) (image.Image, error) {
		if path == "bad" {
			return nil, ErrAssetNotFound
		}
		return solid(red, 1, 1), nil
	})
	loaded, failed := NewAssetCache(resolver).Load(context.Background(), []string{"a", "bad", "b"}, 2)

	assert.Len(t, loaded, 2)
	assert.Contains(t, loaded, "a")
	assert.Contains(t, loaded, "b")
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed["bad"], ErrAssetNotFound)
}
