package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardpress/internal/httpkit"
	"cardpress/internal/models"
)

type JobRepository struct {
	db DB
}

func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, COALESCE(name,''), template_id, status, format, filename_template,
	total, processed, successful, failed, COALESCE(archive_asset_id,''), COALESCE(error_text,''),
	created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }, extra ...any) (*models.Job, error) {
	var j models.Job
	dest := []any{&j.ID, &j.Name, &j.TemplateID, &j.Status, &j.Format, &j.FilenameTemplate,
		&j.Total, &j.Processed, &j.Successful, &j.Failed, &j.ArchiveAssetID, &j.ErrorText,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &j, nil
}

// Create stores a queued job together with its serialized spec.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, name, template_id, status, format, filename_template, total, spec_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
		RETURNING created_at
	`, j.ID, nullIfEmpty(j.Name), j.TemplateID, j.Status, j.Format, j.FilenameTemplate, j.Total, j.Spec).Scan(&j.CreatedAt)
}

// Delete removes a job row; used to roll back a job that could not be queued.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	return err
}

func (r *JobRepository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=$1 ORDER BY created_at DESC LIMIT $2`,
			status, clampLimit(limit))
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id))
	if httpkit.IsNoRows(err) {
		return nil, models.ErrNotFound
	}
	return j, err
}

// GetWithSpec also loads spec_json.
func (r *JobRepository) GetWithSpec(ctx context.Context, id string) (*models.Job, error) {
	var spec []byte
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+`, spec_json FROM jobs WHERE id=$1`, id), &spec)
	if httpkit.IsNoRows(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Spec = spec
	return j, nil
}

// MarkRunning moves a queued job to RUNNING. It returns false when the job
// is not queued, e.g. canceled before the worker picked it up.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status='RUNNING', started_at=now(), finished_at=NULL, error_text=NULL
		WHERE id=$1 AND status='QUEUED'
	`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, p models.JobProgress) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET processed=$2, successful=$3, failed=$4 WHERE id=$1
	`, id, p.Processed, p.Successful, p.Failed)
	return err
}

// Finish records the terminal state. errText is truncated to 2000 bytes.
func (r *JobRepository) Finish(ctx context.Context, id string, status models.JobStatus, archiveAssetID, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s: %s is not terminal", id, status)
	}
	if len(errText) > 2000 {
		errText = errText[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status=$2, archive_asset_id=$3, error_text=$4, finished_at=now()
		WHERE id=$1
	`, id, status, nullIfEmpty(archiveAssetID), nullIfEmpty(errText))
	return err
}

// CancelQueued cancels a job that has not started yet. It returns false when
// the job is in any other state.
func (r *JobRepository) CancelQueued(ctx context.Context, id string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs SET status='CANCELED', finished_at=now()
		WHERE id=$1 AND status='QUEUED'
	`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// SaveResults replaces the stored results of a job in one transaction.
func (r *JobRepository) SaveResults(ctx context.Context, jobID string, results []models.JobResult) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM job_results WHERE job_id=$1`, jobID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, res := range results {
		warnings, err := json.Marshal(res.Warnings)
		if err != nil {
			return err
		}
		if res.Warnings == nil {
			warnings = []byte("[]")
		}
		batch.Queue(`
			INSERT INTO job_results (job_id, idx, filename, success, asset_id, error_text, warnings)
			VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb)
		`, jobID, res.Index, res.Filename, res.Success, nullIfEmpty(res.AssetID), nullIfEmpty(res.Error), warnings)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *JobRepository) ListResults(ctx context.Context, jobID string) ([]models.JobResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT idx, filename, success, COALESCE(asset_id,''), error_text, warnings
		FROM job_results WHERE job_id=$1 ORDER BY idx ASC
	`, jobID)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return []models.JobResult{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []models.JobResult{}
	for rows.Next() {
		var (
			res     models.JobResult
			errText sql.NullString
			raw     []byte
		)
		if err := rows.Scan(&res.Index, &res.Filename, &res.Success, &res.AssetID, &errText, &raw); err != nil {
			return nil, err
		}
		res.JobID = jobID
		res.Error = errText.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &res.Warnings); err != nil {
				return nil, fmt.Errorf("job %s result %d: decode warnings: %w", jobID, res.Index, err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
