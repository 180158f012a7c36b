package models

import (
	"time"

	"cardpress/internal/render"
)

type JobStatus string

const (
	JobQueued   JobStatus = "QUEUED"
	JobRunning  JobStatus = "RUNNING"
	JobDone     JobStatus = "DONE"
	JobCanceled JobStatus = "CANCELED"
	JobFailed   JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobCanceled || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobDone, JobCanceled, JobFailed:
		return true
	}
	return false
}

// Job is one batch run of a template over a set of records.
type Job struct {
	ID               string     `json:"id"`
	Name             string     `json:"name,omitempty"`
	TemplateID       string     `json:"template_id"`
	Status           JobStatus  `json:"status"`
	Format           string     `json:"format"`
	FilenameTemplate string     `json:"filename_template,omitempty"`
	Total            int        `json:"total"`
	Processed        int        `json:"processed"`
	Successful       int        `json:"successful"`
	Failed           int        `json:"failed"`
	ArchiveAssetID   string     `json:"archive_asset_id,omitempty"`
	ErrorText        string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`

	// Spec is the serialized job contract; only the worker reads it.
	Spec []byte `json:"-"`
}

// JobResult is the stored outcome of one record.
type JobResult struct {
	JobID    string           `json:"-"`
	Index    int              `json:"index"`
	Filename string           `json:"filename"`
	Success  bool             `json:"success"`
	AssetID  string           `json:"asset_id,omitempty"`
	Error    string           `json:"error,omitempty"`
	Warnings []render.Warning `json:"warnings,omitempty"`
}

// JobProgress is the counter update written after each record.
type JobProgress struct {
	Processed  int
	Successful int
	Failed     int
}
