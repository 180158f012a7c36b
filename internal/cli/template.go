package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cardpress/internal/render"
)

// TemplateFile is the on-disk template. JSON files parse as YAML.
type TemplateFile struct {
	Name            string               `yaml:"name"`
	Width           int                  `yaml:"width"`
	Height          int                  `yaml:"height"`
	BackgroundColor string               `yaml:"background_color"`
	Elements        []render.ElementSpec `yaml:"elements"`
}

func (t *TemplateFile) Canvas() render.Template {
	return render.Template{Width: t.Width, Height: t.Height, BackgroundColor: t.BackgroundColor}
}

// ParseTemplate decodes a template document. Unknown keys are rejected.
func ParseTemplate(r io.Reader) (*TemplateFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t TemplateFile
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("template file is empty")
		}
		return nil, err
	}
	return &t, nil
}

// LoadTemplate reads path and returns the template, its validated elements
// and the directory relative image paths are resolved against.
func LoadTemplate(path string) (*TemplateFile, []render.Element, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, "", err
	}
	t, err := ParseTemplate(bytes.NewReader(data))
	if err != nil {
		return nil, nil, "", fmt.Errorf("parse %s: %w", path, err)
	}
	elements, err := render.FromSpecs(t.Elements)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%s: %w", path, err)
	}
	if err := render.Validate(t.Canvas(), elements); err != nil {
		return nil, nil, "", fmt.Errorf("%s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, nil, "", err
	}
	return t, elements, dir, nil
}
