package render

import (
	"image"
	"image/color"
)

// Compositor paints single elements onto a Surface. It serves one render at
// a time; renders running in parallel each need their own.
type Compositor struct {
	faces *Faces
}

// NewCompositor returns a compositor drawing text with fonts. A nil cache gets
// one with only the embedded fonts.
func NewCompositor(fonts *FontCache) *Compositor {
	if fonts == nil {
		fonts = NewFontCache()
	}
	return &Compositor{faces: fonts.NewFaces()}
}

// Draw paints el onto s. Image elements without an asset are skipped. Paint
// state changes never outlive the call.
func (c *Compositor) Draw(s *Surface, el Element, asset image.Image) {
	s.Save()
	defer s.Restore()

	switch e := el.(type) {
	case *TextElement:
		c.drawText(s, e)
	case *ImageElement:
		if asset == nil {
			return
		}
		c.drawImage(s, e, asset)
	}
}

func (c *Compositor) drawText(s *Surface, e *TextElement) {
	s.SetFont(c.faces.Face(e.FontFamily, e.FontSize, e.Bold, e.Italic))
	s.SetFill(textColor(e.Color))
	align := e.Alignment
	if align == "" {
		align = AlignLeft
	}
	s.SetTextAlign(align)
	if e.Rotation != 0 {
		s.RotateAbout(e.X, e.Y, e.Rotation)
	}
	s.FillText(e.Text, e.X, e.Y)
}

func (c *Compositor) drawImage(s *Surface, e *ImageElement, asset image.Image) {
	s.SetAlpha(e.EffectiveOpacity())
	if e.Rotation != 0 {
		s.RotateAbout(e.X+e.Width/2, e.Y+e.Height/2, e.Rotation)
	}
	s.DrawImage(asset, e.X, e.Y, e.Width, e.Height)
}

func textColor(s string) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		return defaultColor
	}
	return c
}
