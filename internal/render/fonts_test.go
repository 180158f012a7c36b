package render

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

func TestNormalizeFamily(t *testing.T) {
	tests := map[string]string{
		"":                         DefaultFontFamily,
		"  Arial ":                 "arial",
		`"Open Sans", sans-serif`:  "open sans",
		"'Courier New', monospace": "courier new",
	}
	for in, want := range tests {
		if got := normalizeFamily(in); got != want {
			t.Errorf("normalizeFamily(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestFontCacheFallsBackToEmbedded(t *testing.T) {
	fc := NewFontCache()

	face := fc.Face("Definitely Not Installed", 16, false, false)
	if face == nil {
		t.Fatal("expected a face")
	}

	regular := font.MeasureString(fc.Face("sans-serif", 16, false, false), "Wide text")
	bold := font.MeasureString(fc.Face("sans-serif", 16, true, false), "Wide text")
	if bold <= regular {
		t.Errorf("expected bold to be wider than regular, got %v <= %v", bold, regular)
	}

	small := font.MeasureString(fc.Face("", 10, false, false), "abc")
	large := font.MeasureString(fc.Face("", 40, false, false), "abc")
	if large <= small {
		t.Errorf("expected larger size to measure wider, got %v <= %v", large, small)
	}
}

func TestFacesMemoisedPerSet(t *testing.T) {
	fc := NewFontCache()

	faces := fc.NewFaces()
	face := faces.Face("Definitely Not Installed", 16, false, false)
	if again := faces.Face("definitely not installed", 16, false, false); again != face {
		t.Errorf("expected face to be reused within one set")
	}
	if other := fc.NewFaces().Face("definitely not installed", 16, false, false); other == face {
		t.Errorf("expected separate sets to get separate faces")
	}
}

func TestFontCacheClampsSize(t *testing.T) {
	fc := NewFontCache()

	capped := fc.Face("", MaxFontSize, false, false).Metrics().Height
	huge := fc.Face("", 1e9, false, false).Metrics().Height
	if huge != capped {
		t.Errorf("expected size to be clamped to %d, got height %v want %v", MaxFontSize, huge, capped)
	}
}

func TestFontCacheMonospace(t *testing.T) {
	fc := NewFontCache()
	face := fc.Face("monospace", 20, false, false)
	narrow := font.MeasureString(face, "iiii")
	wide := font.MeasureString(face, "MMMM")
	if narrow != wide {
		t.Errorf("expected monospace advances to match, got %v and %v", narrow, wide)
	}
}

func TestFontCacheScansDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MyMono.ttf"), gomono.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.ttf"), []byte("not a font"), 0o644); err != nil {
		t.Fatal(err)
	}

	fc := NewFontCache(dir)
	face := fc.Face("mymono", 20, false, false)
	if font.MeasureString(face, "iiii") != font.MeasureString(face, "MMMM") {
		t.Errorf("expected the scanned monospace font to be used")
	}
}

func TestLoadFontData(t *testing.T) {
	fc := NewFontCache()
	if err := fc.LoadFontData("Brand", gomono.TTF); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	face := fc.Face("brand", 12, false, false)
	if font.MeasureString(face, "ii") != font.MeasureString(face, "MM") {
		t.Errorf("expected registered font to be used")
	}
	if err := fc.LoadFontData("bad", []byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for invalid font data")
	}
}
