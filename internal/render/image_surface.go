package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// circleSegments is the polygon resolution used for round shapes.
const circleSegments = 24

// ImageSurface rasterises onto an in-memory RGBA image with anti-aliasing.
type ImageSurface struct {
	img  *image.RGBA
	rast *vector.Rasterizer
}

// NewImageSurface allocates a width x height surface.
func NewImageSurface(width, height int) *ImageSurface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &ImageSurface{
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
		rast: vector.NewRasterizer(width, height),
	}
}

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Image exposes the backing image. It is overwritten by the next frame.
func (s *ImageSurface) Image() *image.RGBA { return s.img }

func (s *ImageSurface) Clear(c color.RGBA) {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (s *ImageSurface) Line(from, to Point, c color.RGBA, width float64) {
	s.begin()
	s.segment(from, to, width/2)
	s.fill(c)
}

// StrokePolyline rasterises every segment plus round joins in one pass so
// overlapping parts are not blended twice.
func (s *ImageSurface) StrokePolyline(points []Point, c color.RGBA, width float64) {
	if len(points) == 0 {
		return
	}
	hw := width / 2
	s.begin()
	for i := 1; i < len(points); i++ {
		s.segment(points[i-1], points[i], hw)
	}
	for i := 1; i < len(points)-1; i++ {
		s.circle(points[i], hw)
	}
	s.fill(c)
}

func (s *ImageSurface) FillCircle(center Point, radius float64, c color.RGBA) {
	s.begin()
	s.circle(center, radius)
	s.fill(c)
}

// Text draws with the 7x13 bitmap face.
func (s *ImageSurface) Text(p Point, str string, c color.RGBA) {
	d := font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(math.Round(p.X)), int(math.Round(p.Y))),
	}
	d.DrawString(str)
}

// EncodePNG writes the current frame.
func (s *ImageSurface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}

// PNG returns the current frame as PNG bytes.
func (s *ImageSurface) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ImageSurface) begin() {
	b := s.img.Bounds()
	s.rast.Reset(b.Dx(), b.Dy())
}

func (s *ImageSurface) fill(c color.RGBA) {
	s.rast.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{})
}

// segment adds a quad of half-width hw around from-to. Vertices are emitted
// in the same rotational direction as circle so overlapping shapes add up
// instead of cancelling.
func (s *ImageSurface) segment(from, to Point, hw float64) {
	dx, dy := to.X-from.X, to.Y-from.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		s.circle(from, hw)
		return
	}
	nx, ny := -dy/l*hw, dx/l*hw

	s.rast.MoveTo(float32(from.X-nx), float32(from.Y-ny))
	s.rast.LineTo(float32(to.X-nx), float32(to.Y-ny))
	s.rast.LineTo(float32(to.X+nx), float32(to.Y+ny))
	s.rast.LineTo(float32(from.X+nx), float32(from.Y+ny))
	s.rast.ClosePath()
}

func (s *ImageSurface) circle(c Point, r float64) {
	if r <= 0 {
		return
	}
	s.rast.MoveTo(float32(c.X+r), float32(c.Y))
	for i := 1; i < circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		s.rast.LineTo(float32(c.X+r*math.Cos(a)), float32(c.Y+r*math.Sin(a)))
	}
	s.rast.ClosePath()
}
