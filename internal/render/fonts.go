package render

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// DefaultFontFamily is used when an element names no family.
const DefaultFontFamily = "sans-serif"

// MaxFontSize bounds text size in pixels. Larger sizes are drawn at this
// size.
const MaxFontSize = 4096

const (
	maxFontScanDepth = 3
	maxFontFileSize  = 20 << 20
)

type faceKey struct {
	family string
	size   float64
	bold   bool
	italic bool
}

type fallbackSet struct {
	regular, bold, italic, boldItalic *opentype.Font
}

func (s *fallbackSet) pick(bold, italic bool) *opentype.Font {
	switch {
	case bold && italic:
		return s.boldItalic
	case bold:
		return s.bold
	case italic:
		return s.italic
	}
	return s.regular
}

// FontCache resolves font families to parsed fonts. Families that are generic
// or not registered fall back to the embedded Go fonts so that output does
// not depend on what is installed on the host. A FontCache is safe for
// concurrent use; the faces it creates are not, see Faces.
type FontCache struct {
	mu      sync.RWMutex
	dirs    []string
	fonts   map[string]*opentype.Font
	sans    fallbackSet
	mono    fallbackSet
	scanned bool
}

// NewFontCache creates a cache that lazily scans dirs for .ttf, .otf, .ttc
// and .otc files.
func NewFontCache(dirs ...string) *FontCache {
	fc := &FontCache{
		dirs:  dirs,
		fonts: make(map[string]*opentype.Font),
	}
	fc.sans = fallbackSet{
		regular:    mustParse(goregular.TTF),
		bold:       mustParse(gobold.TTF),
		italic:     mustParse(goitalic.TTF),
		boldItalic: mustParse(gobolditalic.TTF),
	}
	fc.mono = fallbackSet{
		regular:    mustParse(gomono.TTF),
		bold:       mustParse(gomonobold.TTF),
		italic:     mustParse(gomonoitalic.TTF),
		boldItalic: mustParse(gomonobolditalic.TTF),
	}
	return fc
}

func mustParse(data []byte) *opentype.Font {
	f, err := opentype.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("render: embedded font: %v", err))
	}
	return f
}

// Face creates a face for the family at sizePx pixels. It never returns nil.
// The face must not be used from more than one goroutine at a time.
func (fc *FontCache) Face(family string, sizePx float64, bold, italic bool) font.Face {
	fc.ensureScanned()

	f := fc.lookup(normalizeFamily(family), bold, italic)
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    math.Min(sizePx, MaxFontSize),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// NewFaces returns an empty face set drawing from fc.
func (fc *FontCache) NewFaces() *Faces {
	return &Faces{fonts: fc, faces: make(map[faceKey]font.Face)}
}

// Faces memoises the faces of one render. opentype faces keep scratch
// buffers, so a Faces belongs to a single goroutine.
type Faces struct {
	fonts *FontCache
	faces map[faceKey]font.Face
}

func (f *Faces) Face(family string, sizePx float64, bold, italic bool) font.Face {
	key := faceKey{family: normalizeFamily(family), size: sizePx, bold: bold, italic: italic}
	if face, ok := f.faces[key]; ok {
		return face
	}
	face := f.fonts.Face(family, sizePx, bold, italic)
	f.faces[key] = face
	return face
}

// normalizeFamily takes the first entry of a CSS font-family list.
func normalizeFamily(family string) string {
	if i := strings.IndexByte(family, ','); i >= 0 {
		family = family[:i]
	}
	family = strings.ToLower(strings.Trim(strings.TrimSpace(family), `"'`))
	if family == "" {
		return DefaultFontFamily
	}
	return family
}

func (fc *FontCache) lookup(family string, bold, italic bool) *opentype.Font {
	switch family {
	case "monospace", "go mono":
		return fc.mono.pick(bold, italic)
	case "sans-serif", "serif", "system-ui", "go":
		return fc.sans.pick(bold, italic)
	}

	fc.mu.RLock()
	defer fc.mu.RUnlock()

	var suffixes []string
	switch {
	case bold && italic:
		suffixes = []string{" bold italic", "bi", " bolditalic", "z"}
	case bold:
		suffixes = []string{" bold", "bd", "b"}
	case italic:
		suffixes = []string{" italic", "i", " it"}
	}
	for _, s := range suffixes {
		if f, ok := fc.fonts[family+s]; ok {
			return f
		}
	}
	if f, ok := fc.fonts[family]; ok {
		return f
	}
	return fc.sans.pick(bold, italic)
}

// LoadFontData registers a TrueType/OpenType font under name and under its
// internal family and full names.
func (fc *FontCache) LoadFontData(name string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %q: %w", name, err)
	}
	fc.mu.Lock()
	fc.fonts[strings.ToLower(name)] = f
	fc.registerNames(f)
	fc.mu.Unlock()
	return nil
}

// LoadFontFile reads and registers a font file.
func (fc *FontCache) LoadFontFile(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > maxFontFileSize {
		return fmt.Errorf("font file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return fc.LoadFontData(name, data)
}

func (fc *FontCache) ensureScanned() {
	fc.mu.RLock()
	scanned := fc.scanned
	fc.mu.RUnlock()
	if scanned {
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.scanned {
		return
	}
	fc.scanned = true
	for _, dir := range fc.dirs {
		fc.scanDir(dir, 0)
	}
}

func (fc *FontCache) scanDir(dir string, depth int) {
	if depth > maxFontScanDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			fc.scanDir(filepath.Join(dir, entry.Name()), depth+1)
			continue
		}
		lower := strings.ToLower(entry.Name())
		ext := filepath.Ext(lower)
		if ext != ".ttf" && ext != ".otf" && ext != ".ttc" && ext != ".otc" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() > maxFontFileSize {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(lower, ext)
		if ext == ".ttc" || ext == ".otc" {
			coll, err := opentype.ParseCollection(data)
			if err != nil {
				continue
			}
			for i := 0; i < coll.NumFonts(); i++ {
				f, err := coll.Font(i)
				if err != nil {
					continue
				}
				if i == 0 {
					fc.fonts[base] = f
				}
				fc.registerNames(f)
			}
			continue
		}
		f, err := opentype.Parse(data)
		if err != nil {
			continue
		}
		fc.fonts[base] = f
		fc.registerNames(f)
	}
}

// registerNames must be called with mu held.
func (fc *FontCache) registerNames(f *opentype.Font) {
	if name, err := f.Name(nil, sfnt.NameIDFamily); err == nil && name != "" {
		fc.fonts[strings.ToLower(name)] = f
	}
	if name, err := f.Name(nil, sfnt.NameIDFull); err == nil && name != "" {
		fc.fonts[strings.ToLower(name)] = f
	}
}

// SystemFontDirs returns the conventional font directories of the host OS.
func SystemFontDirs() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		dirs := []string{filepath.Join(windir, "Fonts")}
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
		}
		return dirs
	case "darwin":
		dirs := []string{"/System/Library/Fonts", "/Library/Fonts"}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
		}
		return dirs
	default:
		dirs := []string{"/usr/share/fonts", "/usr/local/share/fonts"}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".local", "share", "fonts"), filepath.Join(home, ".fonts"))
		}
		return dirs
	}
}
