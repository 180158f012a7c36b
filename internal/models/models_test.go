package models

import (
	"errors"
	"testing"

	"cardpress/internal/render"
)

func strPtr(s string) *string { return &s }

func TestTemplateDecode(t *testing.T) {
	tpl := &Template{
		Width: 200, Height: 100, BackgroundColor: "#fff",
		Elements: []render.ElementSpec{
			{Type: render.KindText, ID: "title", Text: strPtr("${name}"), FontSize: 24},
			{Type: render.KindImage, ID: "logo", Path: strPtr("logo.png"), Width: 10, Height: 10},
		},
	}
	els, err := tpl.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(els) != 2 || els[0].Kind() != render.KindText || els[1].Kind() != render.KindImage {
		t.Errorf("unexpected elements %v", els)
	}
	if c := tpl.Canvas(); c.Width != 200 || c.Height != 100 || c.BackgroundColor != "#fff" {
		t.Errorf("canvas = %+v", c)
	}
}

func TestTemplateDecodeInvalid(t *testing.T) {
	tpl := &Template{
		Width: 0, Height: 100,
		Elements: []render.ElementSpec{{Type: render.KindText, ID: "t", Text: strPtr("x")}},
	}
	_, err := tpl.Decode()
	var verr *render.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Errorf("problems = %v", verr.Problems)
	}
}

func TestJobStatus(t *testing.T) {
	for _, s := range []JobStatus{JobDone, JobCanceled, JobFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if JobRunning.Terminal() || JobQueued.Terminal() {
		t.Error("queued and running are not terminal")
	}
	if JobStatus("PAUSED").Valid() {
		t.Error("unknown status must be invalid")
	}
}
