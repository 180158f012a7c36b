package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardpress/internal/httpkit"
	"cardpress/internal/models"
	apperr "cardpress/internal/pkg/errors"
	"cardpress/internal/pkg/ids"
	"cardpress/internal/ports"
)

// PostAsset stores an uploaded image. Form fields: file (required), label.
func (h *Handler) PostAsset(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.Newf(apperr.CodeTooLarge, "upload exceeds %d bytes", h.maxUpload)
		}
		return apperr.BadRequest("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return apperr.ValidationField("file", "file is required")
	}
	defer file.Close()

	// Sniff the upload; rendering only consumes images.
	br := bufio.NewReader(file)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		declared := header.Header.Get("Content-Type")
		if !strings.HasPrefix(declared, "image/") {
			return apperr.ValidationField("file", "only image uploads are supported").WithField("mime", contentType)
		}
		contentType = declared
	}

	assetID := ids.New(ids.Asset)
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = guessExt(contentType)
	}
	objectKey := fmt.Sprintf("assets/%s/original%s", assetID, ext)

	out, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: contentType,
		Reader:      br,
		Size:        header.Size,
	})
	if err != nil {
		return apperr.Wrap(err, "assets.upload", "storage put failed")
	}

	label := strings.TrimSpace(r.FormValue("label"))
	if label == "" {
		label = header.Filename
	}
	a := &models.Asset{
		ID:        assetID,
		Kind:      models.AssetUpload,
		Provider:  h.sp.Provider(),
		ObjectKey: out.ObjectKey,
		Mime:      contentType,
		SizeBytes: out.Size,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.assets.Create(ctx, a); err != nil {
		_ = h.sp.DeleteObject(ctx, out.ObjectKey)
		return apperr.Wrap(err, "assets.upload", "db insert asset failed")
	}

	h.log.FromContext(ctx).Info("asset uploaded", "asset_id", a.ID, "size", a.SizeBytes, "mime", a.Mime)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{
		"asset": a,
		"path":  "asset:" + a.ID,
	})
	return nil
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) error {
	a, err := h.loadAsset(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"asset": a})
	return nil
}

// GetAssetURL returns a provider URL when the provider can sign one, and the
// content endpoint otherwise.
func (h *Handler) GetAssetURL(w http.ResponseWriter, r *http.Request) error {
	a, err := h.loadAsset(r)
	if err != nil {
		return err
	}

	const ttl = 30 * time.Minute
	signed, err := h.sp.GetSignedURL(r.Context(), a.ObjectKey, ttl)
	if err != nil {
		return apperr.Wrap(err, "assets.url", "sign url failed")
	}
	if signed.URL == "" {
		signed.URL = fmt.Sprintf("/assets/%s/content", a.ID)
		signed.ExpiresAt = time.Now().UTC().Add(ttl)
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"asset_id":   a.ID,
		"url":        signed.URL,
		"expires_at": signed.ExpiresAt,
	})
	return nil
}

func (h *Handler) StreamAsset(w http.ResponseWriter, r *http.Request) error {
	a, err := h.loadAsset(r)
	if err != nil {
		return err
	}
	return h.stream(w, r, a, "")
}

// DeleteAsset removes an asset unless a job result or archive references it.
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	a, err := h.loadAsset(r)
	if err != nil {
		return err
	}

	inUse, err := h.assets.InUse(ctx, a.ID)
	if err != nil {
		return apperr.Wrap(err, "assets.delete", "db query failed")
	}
	if inUse {
		return apperr.Conflict("asset is referenced by a job").WithField("asset_id", a.ID)
	}

	if err := h.assets.Delete(ctx, a.ID); err != nil {
		if errors.Is(err, models.ErrInUse) {
			return apperr.Conflict("asset is referenced by a job").WithField("asset_id", a.ID)
		}
		if errors.Is(err, models.ErrNotFound) {
			return apperr.NotFound("asset", a.ID)
		}
		return apperr.Wrap(err, "assets.delete", "db delete failed")
	}
	if err := h.sp.DeleteObject(ctx, a.ObjectKey); err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
		h.log.FromContext(ctx).Warn("storage delete failed, object left behind",
			"asset_id", a.ID, "object_key", a.ObjectKey, "error", err.Error())
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) loadAsset(r *http.Request) (*models.Asset, error) {
	id := chi.URLParam(r, "assetId")
	a, err := h.assets.GetAsset(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("asset", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "assets.get", "db query failed")
	}
	return a, nil
}

// stream copies the asset object to w. A non-empty filename is sent as an
// attachment.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, a *models.Asset, filename string) error {
	rc, ct, size, err := h.sp.GetObject(r.Context(), a.ObjectKey)
	if errors.Is(err, ports.ErrObjectNotFound) {
		return apperr.New(apperr.CodeNotFound, "asset file missing").WithField("asset_id", a.ID)
	}
	if err != nil {
		return apperr.Wrap(err, "assets.stream", "storage get failed")
	}
	defer rc.Close()

	if ct == "" || ct == "application/octet-stream" {
		ct = a.Mime
	}
	if size <= 0 {
		size = a.SizeBytes
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Debug("asset stream interrupted", "asset_id", a.ID, "error", err.Error())
	}
	return nil
}

func guessExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
