package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardpress/internal/adapters/storage/localfs"
	"cardpress/internal/models"
	"cardpress/internal/ports"
	"cardpress/internal/render"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFileResolver(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "logo.png"), pngBytes(t, 3, 2, color.White), 0o644))
	ctx := context.Background()

	r := NewFileResolver(root)
	img, err := r.Resolve(ctx, "img/logo.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	_, err = r.Resolve(ctx, "img/missing.png")
	assert.ErrorIs(t, err, render.ErrAssetNotFound)

	_, err = r.Resolve(ctx, "../outside.png")
	assert.Error(t, err)

	abs := filepath.Join(root, "img", "logo.png")
	_, err = r.Resolve(ctx, abs)
	assert.Error(t, err, "absolute paths are rejected by default")

	r.AllowAbsolute = true
	_, err = r.Resolve(ctx, abs)
	assert.NoError(t, err)
}

func TestFileResolverRejectsGarbage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.png"), []byte("not an image"), 0o644))
	_, err := NewFileResolver(root).Resolve(context.Background(), "notes.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, render.ErrAssetNotFound)
}

func TestHTTPResolver(t *testing.T) {
	data := pngBytes(t, 4, 4, color.Black)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		case "/boom.png":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	r := NewHTTPResolverWithClient(ts.Client())
	ctx := context.Background()

	img, err := r.Resolve(ctx, ts.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = r.Resolve(ctx, ts.URL+"/nope.png")
	assert.ErrorIs(t, err, render.ErrAssetNotFound)

	_, err = r.Resolve(ctx, ts.URL+"/boom.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
}

type fakeLookup map[string]*models.Asset

func (f fakeLookup) GetAsset(_ context.Context, id string) (*models.Asset, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, models.ErrNotFound
}

func TestStoreResolver(t *testing.T) {
	ctx := context.Background()
	store := localfs.New(t.TempDir())
	data := pngBytes(t, 5, 5, color.White)
	_, err := store.PutObject(ctx, ports.PutObjectInput{ObjectKey: "assets/a/original.png", Reader: bytes.NewReader(data), Size: int64(len(data))})
	require.NoError(t, err)

	lookup := fakeLookup{
		"ast_present": {ID: "ast_present", ObjectKey: "assets/a/original.png"},
		"ast_orphan":  {ID: "ast_orphan", ObjectKey: "assets/b/original.png"},
	}
	r := NewStoreResolver(lookup, store)

	img, err := r.Resolve(ctx, "asset:ast_present")
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dy())

	for _, p := range []string{"asset:ast_missing", "asset:ast_orphan", "asset:"} {
		_, err := r.Resolve(ctx, p)
		assert.ErrorIs(t, err, render.ErrAssetNotFound, p)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Source{
		"https://cdn.example.com/a.png":        SourceHTTP,
		"HTTP://example.com/a.png":             SourceHTTP,
		"asset:anything":                       SourceStore,
		"ast_0123456789abcdef0123456789abcdef": SourceStore,
		"ast_short":                            SourceFile,
		"images/logo.png":                      SourceFile,
	}
	for path, want := range tests {
		assert.Equal(t, want, Classify(path), path)
	}
}

func TestRouterWithoutRemote(t *testing.T) {
	r := &Router{File: NewFileResolver(t.TempDir())}
	_, err := r.Resolve(context.Background(), "https://example.com/x.png")
	assert.True(t, errors.Is(err, ErrRemoteDisabled))

	_, err = r.Resolve(context.Background(), "asset:ast_x")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "missing.png")
	assert.ErrorIs(t, err, render.ErrAssetNotFound)
}
