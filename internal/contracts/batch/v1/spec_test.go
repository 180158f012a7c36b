package v1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardpress/internal/render"
)

func text(s string) *string { return &s }

func sampleSpec() *JobSpec {
	return &JobSpec{
		JobID:    "job_1",
		Template: TemplateSnapshot{ID: "tpl_1", Name: "badge", Width: 320, Height: 200, BackgroundColor: "#eee"},
		Elements: []render.ElementSpec{
			{Type: render.KindText, ID: "name", Text: text("${name}"), FontSize: 20},
		},
		Records:          []map[string]string{{"name": "Ada"}, {"name": "Grace"}},
		FilenameTemplate: "badge_${name}",
		Format:           render.FormatJPEG,
	}
}

func TestRoundTrip(t *testing.T) {
	data, err := sampleSpec().Marshal()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, "tpl_1", got.Template.ID)
	assert.Len(t, got.Records, 2)
}

func TestParseRejectsOtherVersions(t *testing.T) {
	_, err := Parse([]byte(`{"version":"cardpress.batch/v0"}`))
	assert.True(t, errors.Is(err, ErrVersion))

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}

func TestBatchJob(t *testing.T) {
	job, err := sampleSpec().BatchJob()
	require.NoError(t, err)
	assert.Equal(t, 320, job.Template.Width)
	assert.Equal(t, render.FormatJPEG, job.Format)
	assert.Equal(t, render.Record{"name": "Grace"}, job.Records[1])
	require.Len(t, job.Elements, 1)
	assert.Equal(t, render.KindText, job.Elements[0].Kind())
}

func TestBatchJobInvalid(t *testing.T) {
	s := sampleSpec()
	s.Elements[0].FontSize = 0
	_, err := s.BatchJob()
	var verr *render.ValidationError
	assert.True(t, errors.As(err, &verr))

	s = sampleSpec()
	s.Format = "tiff"
	_, err = s.BatchJob()
	assert.Error(t, err)
}
