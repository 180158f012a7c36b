package render

import (
	"context"
	"errors"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrAssetNotFound is returned by resolvers when a path names nothing.
var ErrAssetNotFound = errors.New("asset not found")

// AssetResolver turns an element path into a decoded raster.
type AssetResolver interface {
	Resolve(ctx context.Context, path string) (image.Image, error)
}

// AssetResolverFunc adapts a function to AssetResolver.
type AssetResolverFunc func(ctx context.Context, path string) (image.Image, error)

func (f AssetResolverFunc) Resolve(ctx context.Context, path string) (image.Image, error) {
	return f(ctx, path)
}

// AssetCache memoises decoded assets by path for the lifetime of one batch
// run. Only successful loads are kept, so a path that failed for one record
// is retried for the next. Entries are never evicted; drop the cache between
// independent runs.
type AssetCache struct {
	resolver AssetResolver
	group    singleflight.Group

	mu     sync.RWMutex
	images map[string]image.Image
}

// NewAssetCache returns an empty cache over resolver. A nil resolver resolves
// nothing.
func NewAssetCache(resolver AssetResolver) *AssetCache {
	return &AssetCache{
		resolver: resolver,
		images:   make(map[string]image.Image),
	}
}

// Get returns the asset for path, loading it on first use. Concurrent callers
// for the same path share one load.
func (c *AssetCache) Get(ctx context.Context, path string) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.images[path]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}
	if c.resolver == nil {
		return nil, ErrAssetNotFound
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		img, err := c.resolver.Resolve(ctx, path)
		if err != nil {
			return nil, err
		}
		if img == nil {
			return nil, ErrAssetNotFound
		}
		c.mu.Lock()
		c.images[path] = img
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Len reports how many assets are cached.
func (c *AssetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every cached asset.
func (c *AssetCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Load resolves each distinct path once, at most limit at a time, and returns
// the loaded images together with the per-path failures.
func (c *AssetCache) Load(ctx context.Context, paths []string, limit int) (map[string]image.Image, map[string]error) {
	loaded := make(map[string]image.Image, len(paths))
	failed := make(map[string]error)
	if len(paths) == 0 {
		return loaded, failed
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, p := range paths {
		p := p
		g.Go(func() error {
			img, err := c.Get(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[p] = err
				return nil
			}
			loaded[p] = img
			return nil
		})
	}
	_ = g.Wait()
	return loaded, failed
}
