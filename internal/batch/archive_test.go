package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardpress/internal/adapters/storage/localfs"
	"cardpress/internal/ports"
)

func zipNames(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, zip.Store, f.Method)
		out[f.Name] = string(b)
	}
	return out
}

func TestWriteZipSkipsFailuresAndDedupes(t *testing.T) {
	results := []Result{
		{Index: 0, Filename: "card.png", Success: true, Data: []byte("a")},
		{Index: 1, Filename: "broken.png", Error: "render failed"},
		{Index: 2, Filename: "Card.png", Success: true, Data: []byte("b")},
	}

	var buf bytes.Buffer
	n, err := WriteZip(&buf, results)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"card.png": "a", "Card_2.png": "b"}, zipNames(t, buf.Bytes()))
}

func TestZipPackagerStoresArchive(t *testing.T) {
	store := localfs.New(t.TempDir())
	p := NewZipPackager(store, "jobs/job_1/results.zip")

	key, err := p.Package(context.Background(), []Result{
		{Filename: "one.png", Success: true, Data: []byte("1")},
		{Filename: "two.png", Success: true, Data: []byte("2")},
	})
	require.NoError(t, err)
	assert.Equal(t, "jobs/job_1/results.zip", key)

	rc, ct, _, err := store.GetObject(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, ArchiveContentType, ct)
	assert.Equal(t, map[string]string{"one.png": "1", "two.png": "2"}, zipNames(t, data))
}

func TestZipPackagerNothingToStore(t *testing.T) {
	store := localfs.New(t.TempDir())
	key, err := NewZipPackager(store, "out.zip").Package(context.Background(), []Result{{Error: "x"}})
	require.NoError(t, err)
	assert.Empty(t, key)

	_, _, _, err = store.GetObject(context.Background(), "out.zip")
	assert.True(t, errors.Is(err, ports.ErrObjectNotFound))
}
