package render

import (
	"errors"
	"image/color"
)

// ErrSurfaceUnavailable is returned when a frame cannot be drawn because the
// surface is missing or has no area. It is transient: the caller keeps
// ticking and tries again next frame.
var ErrSurfaceUnavailable = errors.New("drawing surface unavailable")

// Point is a position in surface pixels, origin top-left.
type Point struct {
	X, Y float64
}

// Surface is the set of drawing primitives the renderer needs.
type Surface interface {
	// Size reports the drawable area in pixels. Zero means detached.
	Size() (width, height int)
	Clear(c color.RGBA)
	Line(from, to Point, c color.RGBA, width float64)
	StrokePolyline(points []Point, c color.RGBA, width float64)
	FillCircle(center Point, radius float64, c color.RGBA)
}

// TextSurface is implemented by surfaces that can draw labels.
type TextSurface interface {
	Surface
	// Text draws s with its baseline-left corner at p.
	Text(p Point, s string, c color.RGBA)
}

func available(s Surface) (w, h int, ok bool) {
	if s == nil {
		return 0, 0, false
	}
	w, h = s.Size()
	return w, h, w > 0 && h > 0
}
