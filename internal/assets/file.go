package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cardpress/internal/render"
)

// FileResolver loads paths from the local filesystem. Relative paths are
// resolved under Root and may not escape it; absolute paths are allowed only
// when AllowAbsolute is set.
type FileResolver struct {
	Root          string
	AllowAbsolute bool
}

func NewFileResolver(root string) *FileResolver {
	return &FileResolver{Root: root}
}

func (f *FileResolver) Resolve(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.locate(path)
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", render.ErrAssetNotFound, path)
		}
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

func (f *FileResolver) locate(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", render.ErrAssetNotFound)
	}
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		if !f.AllowAbsolute {
			return "", fmt.Errorf("absolute asset path %q not allowed", path)
		}
		return filepath.Clean(p), nil
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes %s", path, f.Root)
	}
	return filepath.Join(f.Root, clean), nil
}
