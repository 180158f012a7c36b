// Package v1 is the job contract stored with each job and executed by the
// worker. It snapshots the template so later edits do not affect a queued
// or running job.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"

	"cardpress/internal/batch"
	"cardpress/internal/render"
)

const Version = "cardpress.batch/v1"

type TemplateSnapshot struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	BackgroundColor string `json:"background_color"`
}

type JobSpec struct {
	Version          string               `json:"version"`
	JobID            string               `json:"job_id"`
	Template         TemplateSnapshot     `json:"template"`
	Elements         []render.ElementSpec `json:"elements"`
	Records          []map[string]string  `json:"records"`
	FilenameTemplate string               `json:"filename_template,omitempty"`
	Format           render.Format        `json:"format"`
}

var ErrVersion = errors.New("unsupported job spec version")

// Parse decodes data and checks the version.
func Parse(data []byte) (*JobSpec, error) {
	var s JobSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode job spec: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %q", ErrVersion, s.Version)
	}
	return &s, nil
}

func (s *JobSpec) Marshal() ([]byte, error) {
	if s.Version == "" {
		s.Version = Version
	}
	return json.Marshal(s)
}

// BatchJob converts the spec into a runnable batch job, validating the
// elements on the way.
func (s *JobSpec) BatchJob() (batch.Job, error) {
	tpl := render.Template{
		Width:           s.Template.Width,
		Height:          s.Template.Height,
		BackgroundColor: s.Template.BackgroundColor,
	}
	elements, err := render.FromSpecs(s.Elements)
	if err != nil {
		return batch.Job{}, err
	}
	if err := render.Validate(tpl, elements); err != nil {
		return batch.Job{}, err
	}
	format, err := render.ParseFormat(string(s.Format))
	if err != nil {
		return batch.Job{}, err
	}

	records := make([]render.Record, len(s.Records))
	for i, r := range s.Records {
		records[i] = render.Record(r)
	}
	return batch.Job{
		Template:         tpl,
		Elements:         elements,
		Records:          records,
		FilenameTemplate: s.FilenameTemplate,
		Format:           format,
	}, nil
}
