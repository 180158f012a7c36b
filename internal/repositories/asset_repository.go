package repositories

import (
	"context"
	"database/sql"

	"cardpress/internal/httpkit"
	"cardpress/internal/models"
)

type AssetRepository struct {
	db DB
}

func NewAssetRepository(db DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO assets (id, kind, provider, object_key, mime, size_bytes, label)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, a.ID, a.Kind, a.Provider, a.ObjectKey, a.Mime, a.SizeBytes, nullIfEmpty(a.Label)).Scan(&a.CreatedAt)
}

func (r *AssetRepository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var (
		a     models.Asset
		label sql.NullString
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, kind, provider, object_key, mime, size_bytes, label, created_at
		FROM assets WHERE id=$1
	`, id).Scan(&a.ID, &a.Kind, &a.Provider, &a.ObjectKey, &a.Mime, &a.SizeBytes, &label, &a.CreatedAt)
	if httpkit.IsNoRows(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Label = label.String
	return &a, nil
}

// InUse reports whether a job result or job archive references the asset.
func (r *AssetRepository) InUse(ctx context.Context, id string) (bool, error) {
	var used bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM job_results WHERE asset_id=$1)
		    OR EXISTS (SELECT 1 FROM jobs WHERE archive_asset_id=$1)
	`, id).Scan(&used)
	if httpkit.IsUndefinedTable(err) {
		return false, nil
	}
	return used, err
}

func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM assets WHERE id=$1`, id)
	if err != nil {
		if httpkit.IsForeignKeyViolation(err) {
			return models.ErrInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
