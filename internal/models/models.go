// Package models holds the persisted entities shared by the API and worker.
package models

import (
	"errors"
	"time"

	"cardpress/internal/render"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNameTaken = errors.New("name already exists")
	ErrInUse     = errors.New("still referenced")
)

// Template is a stored canvas definition with its element collection.
type Template struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Width           int                  `json:"width"`
	Height          int                  `json:"height"`
	BackgroundColor string               `json:"background_color"`
	Elements        []render.ElementSpec `json:"elements"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (t *Template) Canvas() render.Template {
	return render.Template{Width: t.Width, Height: t.Height, BackgroundColor: t.BackgroundColor}
}

// Decode converts the stored element specs and validates the whole template.
func (t *Template) Decode() ([]render.Element, error) {
	elements, err := render.FromSpecs(t.Elements)
	if err != nil {
		return nil, err
	}
	if err := render.Validate(t.Canvas(), elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// Asset kinds.
const (
	AssetUpload  = "upload"
	AssetRender  = "render"
	AssetArchive = "archive"
)

type Asset struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider"`
	ObjectKey string    `json:"object_key"`
	Mime      string    `json:"mime"`
	SizeBytes int64     `json:"size_bytes"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
