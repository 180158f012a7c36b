package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"cardpress/internal/models"
	"cardpress/internal/ports"
	"cardpress/internal/render"
)

// StorePrefix marks an element path as an uploaded asset id, e.g.
// "asset:ast_0f3c...".
const StorePrefix = "asset:"

// AssetLookup finds asset metadata by id.
type AssetLookup interface {
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
}

// StoreResolver loads uploaded assets: the id is looked up in the asset
// table and the object is read from the storage provider.
type StoreResolver struct {
	lookup AssetLookup
	sp     ports.StorageProvider
}

func NewStoreResolver(lookup AssetLookup, sp ports.StorageProvider) *StoreResolver {
	return &StoreResolver{lookup: lookup, sp: sp}
}

func (s *StoreResolver) Resolve(ctx context.Context, path string) (image.Image, error) {
	id := strings.TrimSpace(strings.TrimPrefix(path, StorePrefix))
	if id == "" {
		return nil, fmt.Errorf("%w: empty asset id", render.ErrAssetNotFound)
	}

	a, err := s.lookup.GetAsset(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: asset %s", render.ErrAssetNotFound, id)
		}
		return nil, fmt.Errorf("lookup asset %s: %w", id, err)
	}

	rc, _, _, err := s.sp.GetObject(ctx, a.ObjectKey)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: asset %s object missing", render.ErrAssetNotFound, id)
		}
		return nil, fmt.Errorf("download asset %s: %w", id, err)
	}
	defer rc.Close()
	return Decode(rc)
}
