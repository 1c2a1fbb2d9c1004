package render

import (
	"image/color"

	"github.com/Krimson/heart-rhythm-day/internal/models"
	"github.com/Krimson/heart-rhythm-day/internal/trace"
	"github.com/Krimson/heart-rhythm-day/pkg/utils"
)

// Style holds the monitor look. Colours are premultiplied.
type Style struct {
	Background   color.RGBA
	Grid         color.RGBA
	GridSpacing  float64 // 0 disables the grid
	TraceWidth   float64
	GlowWidth    float64 // 0 disables the glow underlay
	GlowAlpha    float64
	Marker       color.RGBA
	MarkerRadius float64
	Label        color.RGBA
	// AmplitudeSpan is the sample range that maps to the full surface height.
	AmplitudeSpan float64
}

// DefaultStyle is the green phosphor monitor.
func DefaultStyle() Style {
	return Style{
		Background:    color.RGBA{0x00, 0x08, 0x00, 0xff},
		Grid:          color.RGBA{0x00, 0x33, 0x00, 0xff},
		GridSpacing:   40,
		TraceWidth:    2.5,
		GlowWidth:     8,
		GlowAlpha:     0.5,
		Marker:        color.RGBA{0xff, 0xff, 0xff, 0xff},
		MarkerRadius:  4,
		Label:         color.RGBA{0x00, 0xff, 0x41, 0xff},
		AmplitudeSpan: 400,
	}
}

// Labels are optional overlays. Empty strings are not drawn.
type Labels struct {
	Lead string
	Time string
	Rate string
}

// Renderer paints a trace buffer onto a surface. It keeps a scratch slice of
// points between frames, so a Renderer belongs to one session.
type Renderer struct {
	style   Style
	step    float64
	samples []float64
	points  []Point
}

// NewRenderer returns a renderer placing samples step pixels apart.
func NewRenderer(style Style, step float64) *Renderer {
	if step <= 0 {
		step = 1
	}
	if style.AmplitudeSpan <= 0 {
		style.AmplitudeSpan = DefaultStyle().AmplitudeSpan
	}
	return &Renderer{style: style, step: step}
}

// Style returns the renderer style.
func (r *Renderer) Style() Style { return r.style }

// Step returns the horizontal distance between samples.
func (r *Renderer) Step() float64 { return r.step }

// Y maps a sample to a surface row for a surface of the given height.
func (r *Renderer) Y(sample float64, height int) float64 {
	h := float64(height)
	return h/2 - sample*h/r.style.AmplitudeSpan
}

// Render clears s and draws grid, trace, leading marker and, when s supports
// text and labels is non-nil, the labels. The buffer is only read.
func (r *Renderer) Render(s Surface, buf *trace.Buffer, info models.CategoryInfo, labels *Labels) error {
	w, h, ok := available(s)
	if !ok {
		return ErrSurfaceUnavailable
	}

	s.Clear(r.style.Background)
	r.drawGrid(s, w, h)

	r.samples = buf.AppendTo(r.samples[:0])
	r.points = r.points[:0]
	for i, v := range r.samples {
		r.points = append(r.points, Point{X: float64(i) * r.step, Y: r.Y(v, h)})
	}

	tint := info.Color()
	if r.style.GlowWidth > 0 {
		s.StrokePolyline(r.points, utils.WithAlpha(tint, r.style.GlowAlpha), r.style.GlowWidth)
	}
	s.StrokePolyline(r.points, tint, r.style.TraceWidth)

	if n := len(r.points); n > 0 && r.style.MarkerRadius > 0 {
		s.FillCircle(r.points[n-1], r.style.MarkerRadius, r.style.Marker)
	}

	if labels != nil {
		if ts, ok := s.(TextSurface); ok {
			r.drawLabels(ts, w, h, *labels)
		}
	}
	return nil
}

func (r *Renderer) drawGrid(s Surface, w, h int) {
	sp := r.style.GridSpacing
	if sp <= 0 {
		return
	}
	fw, fh := float64(w), float64(h)
	for x := 0.0; x < fw; x += sp {
		s.Line(Point{x, 0}, Point{x, fh}, r.style.Grid, 1)
	}
	for y := 0.0; y < fh; y += sp {
		s.Line(Point{0, y}, Point{fw, y}, r.style.Grid, 1)
	}
}

func (r *Renderer) drawLabels(s TextSurface, w, h int, l Labels) {
	const pad = 8.0
	if l.Lead != "" {
		s.Text(Point{pad, pad + 10}, l.Lead, r.style.Label)
	}
	if l.Time != "" {
		x := float64(w) - pad - float64(len(l.Time))*7
		s.Text(Point{x, pad + 10}, l.Time, r.style.Label)
	}
	if l.Rate != "" {
		s.Text(Point{pad, float64(h) - pad}, l.Rate, r.style.Label)
	}
}

// RateLabel formats the rate overlay for a category.
func RateLabel(info models.CategoryInfo) string {
	return "HR " + info.RateLabel()
}
