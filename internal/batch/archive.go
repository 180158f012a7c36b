package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"

	"cardpress/internal/ports"
)

// ArchiveContentType is the MIME type of packaged archives.
const ArchiveContentType = "application/zip"

// WriteZip writes every successful result into a zip archive on w, in result
// order. Repeated filenames are made unique with Dedupe. It returns the
// number of entries written.
func WriteZip(w io.Writer, results []Result) (int, error) {
	var ok []Result
	var names []string
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
			names = append(names, r.Filename)
		}
	}
	names = Dedupe(names)

	zw := zip.NewWriter(w)
	for i, r := range ok {
		// Encoded rasters are already compressed.
		f, err := zw.CreateHeader(&zip.FileHeader{Name: names[i], Method: zip.Store})
		if err != nil {
			return i, fmt.Errorf("zip entry %q: %w", names[i], err)
		}
		if _, err := f.Write(r.Data); err != nil {
			return i, fmt.Errorf("zip entry %q: %w", names[i], err)
		}
	}
	if err := zw.Close(); err != nil {
		return len(ok), fmt.Errorf("close zip: %w", err)
	}
	return len(ok), nil
}

// ZipPackager zips the successful results and stores the archive under a
// fixed object key.
type ZipPackager struct {
	store     ports.StorageProvider
	objectKey string
}

func NewZipPackager(store ports.StorageProvider, objectKey string) *ZipPackager {
	return &ZipPackager{store: store, objectKey: objectKey}
}

// Package returns the stored object key, or "" when nothing succeeded.
func (z *ZipPackager) Package(ctx context.Context, results []Result) (string, error) {
	var buf bytes.Buffer
	n, err := WriteZip(&buf, results)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}

	out, err := z.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   z.objectKey,
		ContentType: ArchiveContentType,
		Reader:      bytes.NewReader(buf.Bytes()),
		Size:        int64(buf.Len()),
	})
	if err != nil {
		return "", fmt.Errorf("store archive: %w", err)
	}
	return out.ObjectKey, nil
}
