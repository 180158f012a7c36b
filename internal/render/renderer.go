package render

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"slices"
	"strings"

	"golang.org/x/image/bmp"
)

// MaxDimension bounds each side of a surface.
const MaxDimension = 16384

// DefaultBackground paints templates that leave the background unset.
const DefaultBackground = "#ffffff"

// Format is an output raster encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
)

// ParseFormat maps a user supplied format name to a Format. The empty string
// selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "png", "image/png":
		return FormatPNG, nil
	case "jpg", "jpeg", "image/jpeg":
		return FormatJPEG, nil
	case "bmp", "image/bmp":
		return FormatBMP, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatBMP:
		return ".bmp"
	}
	return ".png"
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatBMP:
		return "image/bmp"
	}
	return "image/png"
}

// RenderError fails a single render: the surface could not be allocated or
// the result could not be encoded.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// IsRenderError reports whether err is or wraps a *RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// WarningKind classifies non-fatal render problems.
type WarningKind string

const (
	WarningAsset WarningKind = "asset"
	WarningColor WarningKind = "color"
)

// Warning is a non-fatal problem: the render still produced an image.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	ElementID string      `json:"element_id,omitempty"`
	Path      string      `json:"path,omitempty"`
	Message   string      `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.ElementID != "" && w.Path != "":
		return fmt.Sprintf("%s %s (%s): %s", w.Kind, w.ElementID, w.Path, w.Message)
	case w.ElementID != "":
		return fmt.Sprintf("%s %s: %s", w.Kind, w.ElementID, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Output is one encoded raster.
type Output struct {
	Data     []byte
	Format   Format
	Width    int
	Height   int
	Warnings []Warning
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFonts sets the font cache used for text elements.
func WithFonts(fc *FontCache) Option {
	return func(r *Renderer) { r.fonts = fc }
}

// WithJPEGQuality sets the JPEG quality, 1 to 100.
func WithJPEGQuality(q int) Option {
	return func(r *Renderer) {
		if q >= 1 && q <= 100 {
			r.jpegQuality = q
		}
	}
}

// WithLoadConcurrency bounds how many assets one render resolves at once.
func WithLoadConcurrency(n int) Option {
	return func(r *Renderer) { r.loadLimit = n }
}

// Renderer composes a template and its elements into a raster. It owns no
// state besides the asset cache and font cache it was given, which it shares
// across calls. Concurrent calls are safe.
type Renderer struct {
	assets      *AssetCache
	fonts       *FontCache
	jpegQuality int
	loadLimit   int
}

// New returns a renderer loading image assets through assets. A nil cache
// renders image elements as missing.
func New(assets *AssetCache, opts ...Option) *Renderer {
	if assets == nil {
		assets = NewAssetCache(nil)
	}
	r := &Renderer{
		assets:      assets,
		jpegQuality: 90,
		loadLimit:   4,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fonts == nil {
		r.fonts = NewFontCache()
	}
	return r
}

// Render draws elements over tpl and encodes the result. A nil record renders
// the template literally; otherwise text is interpolated against it first.
func (r *Renderer) Render(ctx context.Context, tpl Template, elements []Element, record Record, format Format) (*Output, error) {
	img, warnings, err := r.RenderImage(ctx, tpl, elements, record)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatPNG
	}

	var buf bytes.Buffer
	if err := r.encode(&buf, img, format); err != nil {
		return nil, &RenderError{Op: "encode", Err: err}
	}
	return &Output{
		Data:     buf.Bytes(),
		Format:   format,
		Width:    tpl.Width,
		Height:   tpl.Height,
		Warnings: warnings,
	}, nil
}

// RenderImage is Render without the encoding step.
func (r *Renderer) RenderImage(ctx context.Context, tpl Template, elements []Element, record Record) (*image.RGBA, []Warning, error) {
	if err := checkDimensions(tpl.Width, tpl.Height); err != nil {
		return nil, nil, &RenderError{Op: "allocate", Err: err}
	}

	var warnings []Warning
	surface := NewSurface(tpl.Width, tpl.Height)
	surface.Clear(r.background(tpl.BackgroundColor, &warnings))

	ordered := Sort(elements)
	if record != nil {
		ordered = Bind(ordered, record)
	}

	assets := r.loadAssets(ctx, ordered, &warnings)
	compositor := NewCompositor(r.fonts)
	for _, el := range ordered {
		var asset image.Image
		if img, ok := el.(*ImageElement); ok {
			asset = assets[img.Path]
		}
		if t, ok := el.(*TextElement); ok && t.Color != "" {
			if _, err := ParseColor(t.Color); err != nil {
				warnings = append(warnings, Warning{Kind: WarningColor, ElementID: t.ID, Message: err.Error()})
			}
		}
		compositor.Draw(surface, el, asset)
	}
	return surface.Image(), warnings, nil
}

// Sort returns elements in paint order: ascending stack index, ties kept in
// their original order.
func Sort(elements []Element) []Element {
	out := slices.Clone(elements)
	slices.SortStableFunc(out, func(a, b Element) int {
		return cmp.Compare(a.StackIndex(), b.StackIndex())
	})
	return out
}

func checkDimensions(w, h int) error {
	switch {
	case w <= 0 || h <= 0:
		return fmt.Errorf("invalid surface size %dx%d", w, h)
	case w > MaxDimension || h > MaxDimension:
		return fmt.Errorf("surface size %dx%d exceeds %d", w, h, MaxDimension)
	}
	return nil
}

func (r *Renderer) background(spec string, warnings *[]Warning) color.Color {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultBackground
	}
	c, err := ParseColor(spec)
	if err != nil {
		*warnings = append(*warnings, Warning{Kind: WarningColor, Message: "background: " + err.Error()})
	}
	return c
}

// loadAssets resolves each distinct image path once. Elements whose asset
// failed get one warning each and are later skipped by the compositor.
func (r *Renderer) loadAssets(ctx context.Context, elements []Element, warnings *[]Warning) map[string]image.Image {
	var paths []string
	seen := make(map[string]bool)
	for _, el := range elements {
		img, ok := el.(*ImageElement)
		if !ok || img.Path == "" || seen[img.Path] {
			continue
		}
		seen[img.Path] = true
		paths = append(paths, img.Path)
	}

	loaded, failed := r.assets.Load(ctx, paths, r.loadLimit)
	for _, el := range elements {
		img, ok := el.(*ImageElement)
		if !ok {
			continue
		}
		if img.Path == "" {
			*warnings = append(*warnings, Warning{Kind: WarningAsset, ElementID: img.ID, Message: "no asset path"})
			continue
		}
		if err, bad := failed[img.Path]; bad {
			*warnings = append(*warnings, Warning{Kind: WarningAsset, ElementID: img.ID, Path: img.Path, Message: err.Error()})
		}
	}
	return loaded
}

func (r *Renderer) encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: r.jpegQuality})
	case FormatBMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("unsupported output format %q", format)
}
