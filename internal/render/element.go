package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Template is the static canvas definition shared by every record of a batch.
type Template struct {
	Width           int    `json:"width" yaml:"width"`
	Height          int    `json:"height" yaml:"height"`
	BackgroundColor string `json:"background_color" yaml:"background_color"`
}

// Record is one row of tabular data keyed by column name.
type Record map[string]string

// Kind discriminates the element variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Alignment is the horizontal anchor of a text element relative to its x.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// IsValid reports whether a is one of the supported alignments. The empty
// alignment is valid and means left.
func (a Alignment) IsValid() bool {
	switch a {
	case "", AlignLeft, AlignCenter, AlignRight:
		return true
	}
	return false
}

// Element is a positioned visual primitive. The set of implementations is
// closed: *TextElement and *ImageElement.
type Element interface {
	ElementID() string
	Kind() Kind
	StackIndex() int
	sealed()
}

// TextElement draws a single run of text.
type TextElement struct {
	ID         string    `json:"id" yaml:"id"`
	Text       string    `json:"text" yaml:"text"`
	X          float64   `json:"x" yaml:"x"`
	Y          float64   `json:"y" yaml:"y"`
	FontSize   float64   `json:"font_size" yaml:"font_size"`
	FontFamily string    `json:"font_family,omitempty" yaml:"font_family,omitempty"`
	Color      string    `json:"color" yaml:"color"`
	Bold       bool      `json:"bold,omitempty" yaml:"bold,omitempty"`
	Italic     bool      `json:"italic,omitempty" yaml:"italic,omitempty"`
	Alignment  Alignment `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	Rotation   float64   `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Stack      int       `json:"stack_index,omitempty" yaml:"stack_index,omitempty"`
}

func (e *TextElement) ElementID() string { return e.ID }
func (e *TextElement) Kind() Kind        { return KindText }
func (e *TextElement) StackIndex() int   { return e.Stack }
func (e *TextElement) sealed()           {}

// ImageElement draws a pre-loaded raster asset scaled to Width×Height.
// Path is a reference resolved by an AssetResolver; the element does not own
// the asset.
type ImageElement struct {
	ID       string   `json:"id" yaml:"id"`
	Path     string   `json:"path" yaml:"path"`
	X        float64  `json:"x" yaml:"x"`
	Y        float64  `json:"y" yaml:"y"`
	Width    float64  `json:"width" yaml:"width"`
	Height   float64  `json:"height" yaml:"height"`
	Rotation float64  `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	Stack    int      `json:"stack_index,omitempty" yaml:"stack_index,omitempty"`
}

func (e *ImageElement) ElementID() string { return e.ID }
func (e *ImageElement) Kind() Kind        { return KindImage }
func (e *ImageElement) StackIndex() int   { return e.Stack }
func (e *ImageElement) sealed()           {}

// EffectiveOpacity returns the opacity clamped to [0,1], defaulting to 1.
func (e *ImageElement) EffectiveOpacity() float64 {
	if e.Opacity == nil {
		return 1
	}
	o := *e.Opacity
	switch {
	case o < 0:
		return 0
	case o > 1:
		return 1
	}
	return o
}

// ErrAmbiguousElement is returned when an untyped element carries both a text
// and a path field.
var ErrAmbiguousElement = errors.New("element has both text and path; set type explicitly")

// ElementSpec is the wire shape of an element: a flat union with an explicit
// type discriminant. It is what the API, the job contract and template files
// carry.
type ElementSpec struct {
	Type       Kind      `json:"type,omitempty" yaml:"type,omitempty"`
	ID         string    `json:"id" yaml:"id"`
	Text       *string   `json:"text,omitempty" yaml:"text,omitempty"`
	Path       *string   `json:"path,omitempty" yaml:"path,omitempty"`
	X          float64   `json:"x" yaml:"x"`
	Y          float64   `json:"y" yaml:"y"`
	Width      float64   `json:"width,omitempty" yaml:"width,omitempty"`
	Height     float64   `json:"height,omitempty" yaml:"height,omitempty"`
	FontSize   float64   `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	FontFamily string    `json:"font_family,omitempty" yaml:"font_family,omitempty"`
	Color      string    `json:"color,omitempty" yaml:"color,omitempty"`
	Bold       bool      `json:"bold,omitempty" yaml:"bold,omitempty"`
	Italic     bool      `json:"italic,omitempty" yaml:"italic,omitempty"`
	Alignment  Alignment `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	Rotation   float64   `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Opacity    *float64  `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	StackIndex int       `json:"stack_index,omitempty" yaml:"stack_index,omitempty"`
}

// Element converts the wire shape into its variant. Specs without a type are
// accepted when exactly one of text or path is present.
func (s ElementSpec) Element() (Element, error) {
	kind := s.Type
	if kind == "" {
		switch {
		case s.Text != nil && s.Path != nil:
			return nil, fmt.Errorf("element %q: %w", s.ID, ErrAmbiguousElement)
		case s.Text != nil:
			kind = KindText
		case s.Path != nil:
			kind = KindImage
		default:
			return nil, fmt.Errorf("element %q: missing type", s.ID)
		}
	}

	switch kind {
	case KindText:
		el := &TextElement{
			ID:         s.ID,
			X:          s.X,
			Y:          s.Y,
			FontSize:   s.FontSize,
			FontFamily: s.FontFamily,
			Color:      s.Color,
			Bold:       s.Bold,
			Italic:     s.Italic,
			Alignment:  s.Alignment,
			Rotation:   s.Rotation,
			Stack:      s.StackIndex,
		}
		if s.Text != nil {
			el.Text = *s.Text
		}
		return el, nil
	case KindImage:
		el := &ImageElement{
			ID:       s.ID,
			X:        s.X,
			Y:        s.Y,
			Width:    s.Width,
			Height:   s.Height,
			Rotation: s.Rotation,
			Opacity:  s.Opacity,
			Stack:    s.StackIndex,
		}
		if s.Path != nil {
			el.Path = *s.Path
		}
		return el, nil
	default:
		return nil, fmt.Errorf("element %q: unknown type %q", s.ID, kind)
	}
}

// SpecOf converts an element back to its wire shape.
func SpecOf(el Element) ElementSpec {
	switch e := el.(type) {
	case *TextElement:
		text := e.Text
		return ElementSpec{
			Type:       KindText,
			ID:         e.ID,
			Text:       &text,
			X:          e.X,
			Y:          e.Y,
			FontSize:   e.FontSize,
			FontFamily: e.FontFamily,
			Color:      e.Color,
			Bold:       e.Bold,
			Italic:     e.Italic,
			Alignment:  e.Alignment,
			Rotation:   e.Rotation,
			StackIndex: e.Stack,
		}
	case *ImageElement:
		path := e.Path
		return ElementSpec{
			Type:       KindImage,
			ID:         e.ID,
			Path:       &path,
			X:          e.X,
			Y:          e.Y,
			Width:      e.Width,
			Height:     e.Height,
			Rotation:   e.Rotation,
			Opacity:    e.Opacity,
			StackIndex: e.Stack,
		}
	}
	return ElementSpec{}
}

// FromSpecs converts wire elements, stopping at the first malformed one.
func FromSpecs(specs []ElementSpec) ([]Element, error) {
	out := make([]Element, 0, len(specs))
	for _, s := range specs {
		el, err := s.Element()
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// ToSpecs is the inverse of FromSpecs.
func ToSpecs(elements []Element) []ElementSpec {
	out := make([]ElementSpec, 0, len(elements))
	for _, el := range elements {
		out = append(out, SpecOf(el))
	}
	return out
}

// DecodeElements parses a JSON array of element specs.
func DecodeElements(data []byte) ([]Element, error) {
	var specs []ElementSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	return FromSpecs(specs)
}

// ValidationError lists every problem found in an element collection.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid elements: " + strings.Join(e.Problems, "; ")
}

// Validate checks the invariants of a template and its element collection.
func Validate(tpl Template, elements []Element) error {
	var problems []string
	if tpl.Width <= 0 || tpl.Height <= 0 {
		problems = append(problems, fmt.Sprintf("template size %dx%d must be positive", tpl.Width, tpl.Height))
	} else if tpl.Width > MaxDimension || tpl.Height > MaxDimension {
		problems = append(problems, fmt.Sprintf("template size %dx%d exceeds %d", tpl.Width, tpl.Height, MaxDimension))
	}

	seen := make(map[string]bool, len(elements))
	for i, el := range elements {
		id := el.ElementID()
		if strings.TrimSpace(id) == "" {
			problems = append(problems, fmt.Sprintf("element %d: id is required", i))
		} else if seen[id] {
			problems = append(problems, fmt.Sprintf("element %q: duplicate id", id))
		}
		seen[id] = true

		switch e := el.(type) {
		case *TextElement:
			switch {
			case !(e.FontSize > 0):
				problems = append(problems, fmt.Sprintf("element %q: font_size must be positive", id))
			case e.FontSize > MaxFontSize:
				problems = append(problems, fmt.Sprintf("element %q: font_size must not exceed %d", id, MaxFontSize))
			}
			if !e.Alignment.IsValid() {
				problems = append(problems, fmt.Sprintf("element %q: unknown alignment %q", id, e.Alignment))
			}
		case *ImageElement:
			switch {
			case e.Width < 0 || e.Height < 0:
				problems = append(problems, fmt.Sprintf("element %q: width and height must not be negative", id))
			case e.Width > MaxDimension || e.Height > MaxDimension:
				problems = append(problems, fmt.Sprintf("element %q: width and height must not exceed %d", id, MaxDimension))
			}
			if e.Opacity != nil && (*e.Opacity < 0 || *e.Opacity > 1) {
				problems = append(problems, fmt.Sprintf("element %q: opacity must be within [0,1]", id))
			}
			if strings.TrimSpace(e.Path) == "" {
				problems = append(problems, fmt.Sprintf("element %q: path is required", id))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
