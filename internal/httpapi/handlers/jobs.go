package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardpress/internal/batch"
	v1 "cardpress/internal/contracts/batch/v1"
	"cardpress/internal/csvdata"
	"cardpress/internal/httpkit"
	"cardpress/internal/models"
	apperr "cardpress/internal/pkg/errors"
	"cardpress/internal/pkg/ids"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/queue"
	"cardpress/internal/render"
)

// MaxJobRecords bounds the records of one job.
const MaxJobRecords = 10000

// keepAlive is the interval of SSE comment lines on an idle stream.
var keepAlive = 15 * time.Second

type CreateJobRequest struct {
	TemplateID       string              `json:"template_id"`
	Name             string              `json:"name"`
	Records          []map[string]string `json:"records"`
	FilenameTemplate string              `json:"filename_template"`
	Format           string              `json:"format"`
}

// PostJob queues a batch job. The body is JSON, or a multipart form with the
// same fields plus a "csv" file (and optional "delimiter", "has_header").
// The template is snapshotted into the job so later edits do not affect it.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, warnings, err := h.decodeJobRequest(w, r)
	if err != nil {
		return err
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	if req.TemplateID == "" {
		return apperr.ValidationField("template_id", "template_id is required")
	}
	if len(req.Records) == 0 {
		return apperr.ValidationField("records", "at least one record is required")
	}
	if len(req.Records) > MaxJobRecords {
		return apperr.ValidationField("records", "too many records").WithField("max", MaxJobRecords)
	}
	format, err := render.ParseFormat(req.Format)
	if err != nil {
		return apperr.ValidationField("format", err.Error())
	}

	t, err := h.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return templateStoreError(err, req.TemplateID, "jobs.create")
	}
	if _, err := t.Decode(); err != nil {
		return validationError(err)
	}

	spec := &v1.JobSpec{
		JobID: ids.New(ids.Job),
		Template: v1.TemplateSnapshot{
			ID:              t.ID,
			Name:            t.Name,
			Width:           t.Width,
			Height:          t.Height,
			BackgroundColor: t.BackgroundColor,
		},
		Elements:         t.Elements,
		Records:          req.Records,
		FilenameTemplate: strings.TrimSpace(req.FilenameTemplate),
		Format:           format,
	}
	data, err := spec.Marshal()
	if err != nil {
		return apperr.Wrap(err, "jobs.create", "encode job spec failed")
	}

	job := &models.Job{
		ID:               spec.JobID,
		Name:             strings.TrimSpace(req.Name),
		TemplateID:       t.ID,
		Status:           models.JobQueued,
		Format:           string(format),
		FilenameTemplate: spec.FilenameTemplate,
		Total:            len(req.Records),
		CreatedAt:        time.Now().UTC(),
		Spec:             data,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		return apperr.Wrap(err, "jobs.create", "db insert failed")
	}

	log := h.log.FromContext(ctx).WithJobID(job.ID)
	if err := h.queue.Push(ctx, job.ID); err != nil {
		if delErr := h.jobs.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			log.Error("failed to remove unqueued job", "error", delErr.Error())
		}
		return apperr.WrapWithCode(err, apperr.CodeUnavailable, "jobs.create", "queue push failed")
	}

	log.Info("job queued", "template_id", t.ID, "records", job.Total, "format", job.Format)
	resp := map[string]any{"job": job}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	httpkit.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

func (h *Handler) decodeJobRequest(w http.ResponseWriter, r *http.Request) (*CreateJobRequest, []string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req CreateJobRequest
		if err := httpkit.DecodeJSON(w, r, &req); err != nil {
			return nil, nil, err
		}
		return &req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, apperr.Newf(apperr.CodeTooLarge, "upload exceeds %d bytes", h.maxUpload)
		}
		return nil, nil, apperr.BadRequest("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	opt := csvdata.DefaultOptions()
	opt.MaxRows = MaxJobRecords
	if d := r.FormValue("delimiter"); d != "" {
		delim, err := csvdata.ParseDelimiter(d)
		if err != nil {
			return nil, nil, apperr.ValidationField("delimiter", "delimiter must be a single character")
		}
		opt.Delimiter = delim
	}
	if v := r.FormValue("has_header"); v != "" {
		hasHeader, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, apperr.ValidationField("has_header", "has_header must be a boolean")
		}
		opt.HasHeader = hasHeader
	}

	file, _, err := r.FormFile("csv")
	if err != nil {
		return nil, nil, apperr.ValidationField("csv", "csv file is required")
	}
	defer file.Close()

	table, err := csvdata.Parse(file, opt)
	switch {
	case errors.Is(err, csvdata.ErrTooManyRows):
		return nil, nil, apperr.ValidationField("csv", "too many rows").WithField("max", MaxJobRecords)
	case errors.Is(err, csvdata.ErrBadDelimiter):
		return nil, nil, apperr.ValidationField("delimiter", err.Error())
	case err != nil:
		return nil, nil, apperr.WrapWithCode(err, apperr.CodeValidation, "jobs.csv", "invalid csv: "+err.Error())
	}
	if problems := table.Validate(); len(problems) > 0 {
		return nil, nil, apperr.ValidationProblems("invalid csv", problems)
	}

	req := &CreateJobRequest{
		TemplateID:       r.FormValue("template_id"),
		Name:             r.FormValue("name"),
		FilenameTemplate: r.FormValue("filename_template"),
		Format:           r.FormValue("format"),
	}
	for _, rec := range table.Records() {
		req.Records = append(req.Records, rec)
	}

	var warnings []string
	if t, err := h.templates.Get(r.Context(), strings.TrimSpace(req.TemplateID)); err == nil {
		if elements, err := t.Decode(); err == nil {
			for _, f := range table.MissingFields(elements, req.FilenameTemplate) {
				warnings = append(warnings, "column not found for placeholder ${"+f+"}")
			}
		}
	}
	return req, warnings, nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	status := models.JobStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.Valid() {
		return apperr.ValidationField("status", "unknown job status")
	}
	limit, err := queryLimit(r)
	if err != nil {
		return err
	}

	list, err := h.jobs.List(r.Context(), status, limit)
	if err != nil {
		return apperr.Wrap(err, "jobs.list", "db query failed")
	}
	if list == nil {
		list = []models.Job{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": list})
	return nil
}

// GetJob returns the job with its per-record results.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.loadJob(r)
	if err != nil {
		return err
	}
	results, err := h.jobs.ListResults(r.Context(), job.ID)
	if err != nil {
		return apperr.Wrap(err, "jobs.get", "db results query failed")
	}
	if results == nil {
		results = []models.JobResult{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"job":     job,
		"results": results,
	})
	return nil
}

// CancelJob cancels a queued job at once and asks the worker to stop a
// running one after its current record.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	job, err := h.loadJob(r)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apperr.New(apperr.CodeConflict, "job already finished").WithField("status", string(job.Status))
	}
	log := h.log.FromContext(ctx).WithJobID(job.ID)

	if job.Status == models.JobQueued {
		canceled, err := h.jobs.CancelQueued(ctx, job.ID)
		if err != nil {
			return apperr.Wrap(err, "jobs.cancel", "db update failed")
		}
		if canceled {
			job.Status = models.JobCanceled
			if err := h.queue.Publish(ctx, queue.Message{
				JobID:  job.ID,
				Event:  batch.Event{Type: batch.EventError, Total: job.Total, Message: "canceled before start"},
				Status: string(models.JobCanceled),
			}); err != nil {
				log.Debug("failed to publish cancel", "error", err.Error())
			}
			log.Info("queued job canceled")
			httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
			return nil
		}
		// Picked up by a worker in the meantime.
	}

	if err := h.queue.RequestCancel(ctx, job.ID); err != nil {
		return apperr.WrapWithCode(err, apperr.CodeUnavailable, "jobs.cancel", "cancel request failed")
	}
	log.Info("cancel requested")
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": job, "cancel_requested": true})
	return nil
}

// JobEvents streams job events as server-sent events. The first event is a
// "status" snapshot of the job; relayed events follow until the job reaches
// a terminal status or the client goes away.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobId")

	// Subscribe before reading the job so a status change in between is
	// not lost.
	sub, err := h.queue.Subscribe(ctx, jobID)
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeUnavailable, "jobs.events", "subscribe failed")
	}
	defer sub.Close()

	job, err := h.loadJob(r)
	if err != nil {
		return err
	}

	sse, err := httpkit.NewSSE(w)
	if err != nil {
		return apperr.Wrap(err, "jobs.events", "streaming unsupported")
	}
	log := h.log.FromContext(logger.ContextWithJobID(ctx, job.ID))
	if err := sse.Send("status", job); err != nil {
		return nil
	}
	if job.Status.Terminal() {
		return nil
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sse.Comment("keep-alive"); err != nil {
				return nil
			}
		case m, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := sse.Send(string(m.Type), m); err != nil {
				log.Debug("event stream closed", "error", err.Error())
				return nil
			}
			if m.Status != "" && models.JobStatus(m.Status).Terminal() {
				return nil
			}
		}
	}
}

// GetJobArchive downloads the zip of a finished job.
func (h *Handler) GetJobArchive(w http.ResponseWriter, r *http.Request) error {
	job, err := h.loadJob(r)
	if err != nil {
		return err
	}
	if job.ArchiveAssetID == "" {
		if !job.Status.Terminal() {
			return apperr.Conflict("job has not finished").WithField("status", string(job.Status))
		}
		return apperr.NotFound("archive", job.ID)
	}

	a, err := h.assets.GetAsset(r.Context(), job.ArchiveAssetID)
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("archive", job.ID)
	}
	if err != nil {
		return apperr.Wrap(err, "jobs.archive", "db query failed")
	}
	return h.stream(w, r, a, job.ID+".zip")
}

func (h *Handler) loadJob(r *http.Request) (*models.Job, error) {
	id := chi.URLParam(r, "jobId")
	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("job", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "jobs.get", "db query failed")
	}
	return job, nil
}
