package batch

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"cardpress/internal/render"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		record render.Record
		index  int
		format render.Format
		want   string
	}{
		{"interpolated", "out_${id}", render.Record{"id": "7"}, 0, render.FormatPNG, "out_7.png"},
		{"empty template", "", render.Record{"id": "7"}, 4, render.FormatPNG, "image_5.png"},
		{"blank after interpolation", "  ${empty} ", render.Record{"empty": ""}, 0, render.FormatJPEG, "image_1.jpg"},
		{"extension kept", "photo_${id}.png", render.Record{"id": "1"}, 0, render.FormatPNG, "photo_1.png"},
		{"jpeg alias kept", "photo.JPEG", nil, 0, render.FormatJPEG, "photo.JPEG"},
		{"other extension appended", "photo.png", nil, 0, render.FormatBMP, "photo.png.bmp"},
		{"unknown placeholder kept", "x_${nope}", render.Record{}, 0, render.FormatPNG, "x_${nope}.png"},
		{"path separators", "${dir}", render.Record{"dir": "../etc/passwd"}, 0, render.FormatPNG, ".._etc_passwd.png"},
		{"dot only", "${d}", render.Record{"d": ".."}, 2, render.FormatPNG, "image_3.png"},
		{"default format", "a", nil, 0, "", "a.png"},
		{"normalised", "café", nil, 0, render.FormatPNG, "café.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.tmpl, tt.record, tt.index, tt.format); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"a.png", "b.png", "a.png", "A.png", "a_2.png", "noext", "noext"})
	want := []string{"a.png", "b.png", "a_2.png", "A_3.png", "a_2_2.png", "noext", "noext_2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dedupe mismatch (-want +got):\n%s", diff)
	}
}
