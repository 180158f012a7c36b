package processor

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"cardpress/internal/batch"
	"cardpress/internal/models"
	"cardpress/internal/pkg/ids"
	"cardpress/internal/ports"
	"cardpress/internal/render"
)

// OutputHandler stores the rendered images of one job as assets and builds
// the job archive. It is the batch.Packager of the worker.
type OutputHandler struct {
	assets AssetStore
	sp     ports.StorageProvider
	jobID  string
	format render.Format

	// index -> asset id of every stored image
	stored map[int]string
}

func NewOutputHandler(assets AssetStore, sp ports.StorageProvider, jobID string, format render.Format) *OutputHandler {
	return &OutputHandler{
		assets: assets,
		sp:     sp,
		jobID:  jobID,
		format: format,
		stored: make(map[int]string),
	}
}

// Package stores every successful image, then zips them into one archive
// asset and returns its id. Nothing to archive yields "".
func (oh *OutputHandler) Package(ctx context.Context, results []batch.Result) (string, error) {
	if err := oh.StoreImages(ctx, results); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	n, err := batch.WriteZip(&buf, results)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	name := oh.jobID + ".zip"
	return oh.register(ctx, models.AssetArchive, batch.ArchiveContentType, name, buf.Bytes())
}

// StoreImages uploads the successful results not stored yet. Entry names
// are deduplicated the same way as in the archive.
func (oh *OutputHandler) StoreImages(ctx context.Context, results []batch.Result) error {
	var ok []batch.Result
	var names []string
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
			names = append(names, r.Filename)
		}
	}
	names = batch.Dedupe(names)

	for i, r := range ok {
		if _, done := oh.stored[r.Index]; done {
			continue
		}
		id, err := oh.register(ctx, models.AssetRender, oh.format.ContentType(), names[i], r.Data)
		if err != nil {
			return fmt.Errorf("store image %d: %w", r.Index, err)
		}
		oh.stored[r.Index] = id
	}
	return nil
}

// JobResults converts runner results into stored rows, attaching the asset
// id of every stored image.
func (oh *OutputHandler) JobResults(results []batch.Result) []models.JobResult {
	out := make([]models.JobResult, len(results))
	for i, r := range results {
		out[i] = models.JobResult{
			JobID:    oh.jobID,
			Index:    r.Index,
			Filename: r.Filename,
			Success:  r.Success,
			AssetID:  oh.stored[r.Index],
			Error:    r.Error,
			Warnings: r.Warnings,
		}
	}
	return out
}

func (oh *OutputHandler) register(ctx context.Context, kind, mime, name string, data []byte) (string, error) {
	up, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   path.Join("jobs", oh.jobID, name),
		ContentType: mime,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	a := &models.Asset{
		ID:        ids.New(ids.Asset),
		Kind:      kind,
		Provider:  oh.sp.Provider(),
		ObjectKey: up.ObjectKey,
		Mime:      mime,
		SizeBytes: up.Size,
		Label:     name,
	}
	if err := oh.assets.Create(ctx, a); err != nil {
		_ = oh.sp.DeleteObject(ctx, up.ObjectKey)
		return "", fmt.Errorf("register asset %s: %w", name, err)
	}
	return a.ID, nil
}
