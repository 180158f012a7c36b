package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"cardpress/internal/httpkit"
	"cardpress/internal/models"
)

type TemplateRepository struct {
	db DB
}

func NewTemplateRepository(db DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, width, height, background_color, elements, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*models.Template, error) {
	var (
		t   models.Template
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Width, &t.Height, &t.BackgroundColor, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &t.Elements); err != nil {
		return nil, fmt.Errorf("template %s: decode elements: %w", t.ID, err)
	}
	return &t, nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	elements, err := json.Marshal(t.Elements)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO templates (id, name, width, height, background_color, elements)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.Width, t.Height, t.BackgroundColor, elements).Scan(&t.CreatedAt, &t.UpdatedAt)
	if httpkit.IsUniqueViolation(err) {
		return models.ErrNameTaken
	}
	return err
}

func (r *TemplateRepository) List(ctx context.Context, limit int) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE id=$1 AND deleted_at IS NULL
	`, id))
	if httpkit.IsNoRows(err) {
		return nil, models.ErrNotFound
	}
	return t, err
}

// Update overwrites every mutable column of t.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	elements, err := json.Marshal(t.Elements)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		UPDATE templates
		SET name=$2, width=$3, height=$4, background_color=$5, elements=$6::jsonb, updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING updated_at
	`, t.ID, t.Name, t.Width, t.Height, t.BackgroundColor, elements).Scan(&t.UpdatedAt)
	switch {
	case httpkit.IsNoRows(err):
		return models.ErrNotFound
	case httpkit.IsUniqueViolation(err):
		return models.ErrNameTaken
	}
	return err
}

// Delete soft-deletes; jobs keep referencing the row.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
