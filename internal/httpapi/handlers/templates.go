package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardpress/internal/httpkit"
	"cardpress/internal/models"
	apperr "cardpress/internal/pkg/errors"
	"cardpress/internal/pkg/ids"
	"cardpress/internal/render"
)

// RenderWarningsHeader carries the warnings of a preview render.
const RenderWarningsHeader = "X-Render-Warnings"

type CreateTemplateRequest struct {
	Name            string               `json:"name"`
	Width           int                  `json:"width"`
	Height          int                  `json:"height"`
	BackgroundColor string               `json:"background_color"`
	Elements        []render.ElementSpec `json:"elements"`
}

type UpdateTemplateRequest struct {
	Name            *string               `json:"name,omitempty"`
	Width           *int                  `json:"width,omitempty"`
	Height          *int                  `json:"height,omitempty"`
	BackgroundColor *string               `json:"background_color,omitempty"`
	Elements        *[]render.ElementSpec `json:"elements,omitempty"`
}

type PreviewRequest struct {
	Record render.Record `json:"record"`
	Format string        `json:"format,omitempty"`
}

func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateTemplateRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	now := time.Now().UTC()
	t := &models.Template{
		ID:              ids.New(ids.Template),
		Name:            strings.TrimSpace(req.Name),
		Width:           req.Width,
		Height:          req.Height,
		BackgroundColor: strings.TrimSpace(req.BackgroundColor),
		Elements:        req.Elements,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateTemplate(t); err != nil {
		return err
	}

	if err := h.templates.Create(ctx, t); err != nil {
		return templateStoreError(err, t.ID, "templates.create")
	}
	h.log.FromContext(ctx).Info("template created", "template_id", t.ID, "elements", len(t.Elements))
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"template": t})
	return nil
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryLimit(r)
	if err != nil {
		return err
	}
	list, err := h.templates.List(r.Context(), limit)
	if err != nil {
		return apperr.Wrap(err, "templates.list", "db query failed")
	}
	if list == nil {
		list = []models.Template{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"templates": list})
	return nil
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) error {
	t, err := h.loadTemplate(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"template": t})
	return nil
}

// PatchTemplate applies the fields present in the body and revalidates the
// whole template.
func (h *Handler) PatchTemplate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	t, err := h.loadTemplate(r)
	if err != nil {
		return err
	}

	var req UpdateTemplateRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Width != nil {
		t.Width = *req.Width
	}
	if req.Height != nil {
		t.Height = *req.Height
	}
	if req.BackgroundColor != nil {
		t.BackgroundColor = strings.TrimSpace(*req.BackgroundColor)
	}
	if req.Elements != nil {
		t.Elements = *req.Elements
	}
	t.UpdatedAt = time.Now().UTC()

	if err := validateTemplate(t); err != nil {
		return err
	}
	if err := h.templates.Update(ctx, t); err != nil {
		return templateStoreError(err, t.ID, "templates.update")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"template": t})
	return nil
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "templateId")
	if err := h.templates.Delete(r.Context(), id); err != nil {
		return templateStoreError(err, id, "templates.delete")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PreviewTemplate renders the template once. Without a record the design
// view is drawn with placeholders intact; with one the placeholders are
// filled. The format comes from ?format= or the body and defaults to png.
func (h *Handler) PreviewTemplate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	t, err := h.loadTemplate(r)
	if err != nil {
		return err
	}

	var req PreviewRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = req.Format
	}
	format, err := render.ParseFormat(formatName)
	if err != nil {
		return apperr.ValidationField("format", err.Error())
	}

	elements, err := t.Decode()
	if err != nil {
		return validationError(err)
	}

	out, err := h.renderer().Render(ctx, t.Canvas(), elements, req.Record, format)
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeRender, "templates.preview", err.Error())
	}

	if len(out.Warnings) > 0 {
		msgs := make([]string, len(out.Warnings))
		for i, wn := range out.Warnings {
			msgs[i] = wn.String()
		}
		w.Header().Set(RenderWarningsHeader, strings.Join(msgs, "; "))
		h.log.FromContext(ctx).Warn("preview rendered with warnings",
			"template_id", t.ID, "warnings", len(out.Warnings))
	}
	w.Header().Set("Content-Type", out.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
	return nil
}

func (h *Handler) loadTemplate(r *http.Request) (*models.Template, error) {
	id := chi.URLParam(r, "templateId")
	t, err := h.templates.Get(r.Context(), id)
	if err != nil {
		return nil, templateStoreError(err, id, "templates.get")
	}
	return t, nil
}

func validateTemplate(t *models.Template) error {
	if t.Name == "" {
		return apperr.ValidationField("name", "name is required")
	}
	if t.Elements == nil {
		t.Elements = []render.ElementSpec{}
	}
	if _, err := t.Decode(); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError reports element problems one by one under "problems".
func validationError(err error) error {
	var ve *render.ValidationError
	if errors.As(err, &ve) {
		return apperr.ValidationProblems("invalid template", ve.Problems)
	}
	return apperr.Validation(err.Error())
}

func templateStoreError(err error, id, op string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return apperr.NotFound("template", id)
	case errors.Is(err, models.ErrNameTaken):
		return apperr.Conflict("template name already exists").WithField("field", "name")
	default:
		return apperr.Wrap(err, op, "db query failed")
	}
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.ValidationField("limit", "limit must be a positive integer")
	}
	return n, nil
}
