package assets

import (
	"context"
	"errors"
	"image"
	"strings"

	"cardpress/internal/pkg/ids"
)

// ErrRemoteDisabled is returned for URL paths when no HTTP resolver is set.
var ErrRemoteDisabled = errors.New("remote assets are disabled")

// Router dispatches by path shape: http(s) URLs go to HTTP, "asset:<id>" and
// bare asset ids go to Store, everything else to File. Nil resolvers reject
// their paths.
type Router struct {
	File  *FileResolver
	HTTP  *HTTPResolver
	Store *StoreResolver
}

func (r *Router) Resolve(ctx context.Context, path string) (image.Image, error) {
	p := strings.TrimSpace(path)
	switch Classify(p) {
	case SourceHTTP:
		if r.HTTP == nil {
			return nil, ErrRemoteDisabled
		}
		return r.HTTP.Resolve(ctx, p)
	case SourceStore:
		if r.Store == nil {
			return nil, errors.New("asset store is not configured")
		}
		return r.Store.Resolve(ctx, p)
	default:
		if r.File == nil {
			return nil, errors.New("local files are not available")
		}
		return r.File.Resolve(ctx, p)
	}
}

type Source int

const (
	SourceFile Source = iota
	SourceHTTP
	SourceStore
)

func Classify(path string) Source {
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return SourceHTTP
	case strings.HasPrefix(path, StorePrefix), ids.HasPrefix(path, ids.Asset):
		return SourceStore
	default:
		return SourceFile
	}
}
