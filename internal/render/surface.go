package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

var identity = f64.Aff3{1, 0, 0, 0, 1, 0}

// mul returns m·n, the transform that applies n first and then m.
func mul(m, n f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		m[0]*n[0] + m[1]*n[3],
		m[0]*n[1] + m[1]*n[4],
		m[0]*n[2] + m[1]*n[5] + m[2],
		m[3]*n[0] + m[4]*n[3],
		m[3]*n[1] + m[4]*n[4],
		m[3]*n[2] + m[4]*n[5] + m[5],
	}
}

func translate(tx, ty float64) f64.Aff3 { return f64.Aff3{1, 0, tx, 0, 1, ty} }
func scale(sx, sy float64) f64.Aff3     { return f64.Aff3{sx, 0, 0, 0, sy, 0} }

// rotate turns clockwise on screen, where y grows downwards.
func rotate(deg float64) f64.Aff3 {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	// Quarter turns stay exact so axis-aligned results do not blur.
	if math.Abs(sin) < 1e-12 {
		sin = 0
	}
	if math.Abs(cos) < 1e-12 {
		cos = 0
	}
	return f64.Aff3{cos, -sin, 0, sin, cos, 0}
}

func translationOnly(m f64.Aff3) bool {
	return m[0] == 1 && m[1] == 0 && m[3] == 0 && m[4] == 1
}

func invert(m f64.Aff3) (f64.Aff3, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return f64.Aff3{}, false
	}
	a, b := m[4]/det, -m[1]/det
	d, e := -m[3]/det, m[0]/det
	return f64.Aff3{a, b, -(a*m[2] + b*m[5]), d, e, -(d*m[2] + e*m[5])}, true
}

// mapBounds returns the integer rectangle enclosing r mapped through m.
func mapBounds(m f64.Aff3, r image.Rectangle) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	} {
		x := m[0]*p[0] + m[1]*p[1] + m[2]
		y := m[3]*p[0] + m[4]*p[1] + m[5]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	clamp := func(v float64) int {
		return int(math.Max(-math.MaxInt32, math.Min(math.MaxInt32, v)))
	}
	return image.Rect(clamp(math.Floor(minX)), clamp(math.Floor(minY)), clamp(math.Ceil(maxX)), clamp(math.Ceil(maxY)))
}

type paintState struct {
	transform f64.Aff3
	alpha     float64
	fill      color.NRGBA
	face      font.Face
	align     Alignment
}

// Surface is a raster canvas with a save/restore stack of paint state:
// transform, global alpha, fill colour, font and text alignment. Nothing set
// between Save and Restore outlives the Restore.
type Surface struct {
	img   *image.RGBA
	state paintState
	stack []paintState
}

// NewSurface allocates a transparent width×height surface.
func NewSurface(width, height int) *Surface {
	return &Surface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		state: paintState{
			transform: identity,
			alpha:     1,
			fill:      defaultColor,
			align:     AlignLeft,
		},
	}
}

// Image returns the backing raster.
func (s *Surface) Image() *image.RGBA { return s.img }

// Bounds returns the raster bounds.
func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

func (s *Surface) Save() { s.stack = append(s.stack, s.state) }

// Restore pops the last saved state. Unbalanced calls are ignored.
func (s *Surface) Restore() {
	if len(s.stack) == 0 {
		return
	}
	s.state = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
}

// Depth reports how many states are saved.
func (s *Surface) Depth() int { return len(s.stack) }

// Clear fills the whole surface with c, replacing what is there.
func (s *Surface) Clear(c color.Color) {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// RotateAbout rotates subsequent drawing by deg degrees clockwise around
// (px, py) in the current coordinate space.
func (s *Surface) RotateAbout(px, py, deg float64) {
	if deg == 0 {
		return
	}
	m := mul(translate(px, py), mul(rotate(deg), translate(-px, -py)))
	s.state.transform = mul(s.state.transform, m)
}

// SetAlpha sets the global alpha, clamped to [0,1].
func (s *Surface) SetAlpha(a float64) {
	s.state.alpha = math.Max(0, math.Min(1, a))
}

func (s *Surface) SetFill(c color.NRGBA)    { s.state.fill = c }
func (s *Surface) SetFont(face font.Face)   { s.state.face = face }
func (s *Surface) SetTextAlign(a Alignment) { s.state.align = a }

// MeasureText returns the advance width of text in the current font.
func (s *Surface) MeasureText(text string) float64 {
	if s.state.face == nil {
		return 0
	}
	return float64(font.MeasureString(s.state.face, text)) / 64
}

func (s *Surface) fillSource() *image.Uniform {
	c := s.state.fill
	c.A = uint8(math.Round(float64(c.A) * s.state.alpha))
	return image.NewUniform(c)
}

// FillText draws text with its top edge at y. x is the left edge, centre or
// right edge depending on the text alignment.
func (s *Surface) FillText(text string, x, y float64) {
	face := s.state.face
	if face == nil || text == "" || s.state.alpha == 0 {
		return
	}

	width := s.MeasureText(text)
	left := x
	switch s.state.align {
	case AlignCenter:
		left = x - width/2
	case AlignRight:
		left = x - width
	}
	metrics := face.Metrics()
	ascent := float64(metrics.Ascent) / 64

	m := s.state.transform
	if translationOnly(m) {
		d := font.Drawer{
			Dst:  s.img,
			Src:  s.fillSource(),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.Int26_6(math.Round((left + m[2]) * 64)),
				Y: fixed.Int26_6(math.Round((y + ascent + m[5]) * 64)),
			},
		}
		d.DrawString(text)
		return
	}

	// Rotated text is rasterised upright into a layer and mapped through the
	// transform. Only the part of the layer that can reach the canvas is
	// allocated.
	h := int(math.Ceil(float64(metrics.Ascent+metrics.Descent) / 64))
	w := int(math.Ceil(width))
	if w <= 0 || h <= 0 {
		return
	}
	toCanvas := mul(m, translate(left, y))
	inv, ok := invert(toCanvas)
	if !ok {
		return
	}
	region := image.Rect(0, 0, w, h).Intersect(mapBounds(inv, s.img.Bounds()).Inset(-2))
	if region.Empty() {
		return
	}
	layer := image.NewRGBA(region)
	d := font.Drawer{
		Dst:  layer,
		Src:  s.fillSource(),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	d.DrawString(text)
	xdraw.BiLinear.Transform(s.img, toCanvas, layer, region, xdraw.Over, nil)
}

// DrawImage draws img scaled to w×h with its top-left corner at (x, y),
// honouring the current transform and global alpha. Degenerate sizes draw
// nothing. Targets larger than the canvas are sampled straight from img, so
// memory use is bounded by the canvas whatever w and h are.
func (s *Surface) DrawImage(img image.Image, x, y, w, h float64) {
	if img == nil || s.state.alpha == 0 {
		return
	}
	src := img.Bounds()
	if src.Empty() || math.IsInf(w, 0) || math.IsInf(h, 0) || !(math.Round(w) >= 1 && math.Round(h) >= 1) {
		return
	}

	var mask image.Image
	if s.state.alpha < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(s.state.alpha * 255))})
	}

	canvas := s.img.Bounds()
	if w*h <= float64(canvas.Dx()*canvas.Dy()) {
		rw, rh := int(math.Round(w)), int(math.Round(h))
		scaled := imaging.Resize(img, rw, rh, imaging.Linear)
		m := mul(s.state.transform, mul(translate(x, y), scale(w/float64(rw), h/float64(rh))))
		if translationOnly(m) && m[2] == math.Trunc(m[2]) && m[5] == math.Trunc(m[5]) {
			at := image.Pt(int(m[2]), int(m[5]))
			draw.DrawMask(s.img, scaled.Bounds().Add(at), scaled, image.Point{}, mask, image.Point{}, draw.Over)
			return
		}
		s.transform(m, scaled, scaled.Bounds(), mask)
		return
	}

	fit := mul(scale(w/float64(src.Dx()), h/float64(src.Dy())), translate(-float64(src.Min.X), -float64(src.Min.Y)))
	s.transform(mul(s.state.transform, mul(translate(x, y), fit)), img, src, mask)
}

func (s *Surface) transform(m f64.Aff3, src image.Image, sr image.Rectangle, mask image.Image) {
	var opts *xdraw.Options
	if mask != nil {
		opts = &xdraw.Options{SrcMask: mask}
	}
	xdraw.BiLinear.Transform(s.img, m, src, sr, xdraw.Over, opts)
}
