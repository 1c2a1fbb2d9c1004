package render

import (
	"image/color"
	"math"

	"github.com/gdamore/tcell/v2"
)

// Dot (col,row) inside a braille cell to bit offset:
//
//	(0,0)=0  (1,0)=3
//	(0,1)=1  (1,1)=4
//	(0,2)=2  (1,2)=5
//	(0,3)=6  (1,3)=7
var brailleBits = [2][4]uint{
	{0, 1, 2, 6},
	{3, 4, 5, 7},
}

const brailleBase = 0x2800

type textOverlay struct {
	col, row int
	text     string
	color    color.RGBA
}

// BrailleSurface draws into a grid of terminal cells, each cell holding a
// 2x4 block of dots. Pixel coordinates are dot coordinates. Each cell keeps
// the colour of the last shape that touched it.
type BrailleSurface struct {
	cols, rows int
	bits       []uint8
	colors     []color.RGBA
	background color.RGBA
	texts      []textOverlay
}

// NewBrailleSurface returns a surface of cols x rows terminal cells.
func NewBrailleSurface(cols, rows int) *BrailleSurface {
	s := &BrailleSurface{}
	s.Resize(cols, rows)
	return s
}

// Resize reallocates the cell grid, dropping its contents.
func (s *BrailleSurface) Resize(cols, rows int) {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	s.cols, s.rows = cols, rows
	s.bits = make([]uint8, cols*rows)
	s.colors = make([]color.RGBA, cols*rows)
	s.texts = s.texts[:0]
}

// Size is in dots.
func (s *BrailleSurface) Size() (int, int) {
	return s.cols * 2, s.rows * 4
}

// Cells returns the grid size in terminal cells.
func (s *BrailleSurface) Cells() (cols, rows int) {
	return s.cols, s.rows
}

func (s *BrailleSurface) Clear(c color.RGBA) {
	for i := range s.bits {
		s.bits[i] = 0
		s.colors[i] = c
	}
	s.background = c
	s.texts = s.texts[:0]
}

// Line plots a one-dot-wide Bresenham line; width is ignored since a dot is
// already coarser than any stroke the renderer asks for.
func (s *BrailleSurface) Line(from, to Point, c color.RGBA, _ float64) {
	x0, y0 := int(math.Round(from.X)), int(math.Round(from.Y))
	x1, y1 := int(math.Round(to.X)), int(math.Round(to.Y))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		s.setDot(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (s *BrailleSurface) StrokePolyline(points []Point, c color.RGBA, width float64) {
	if len(points) == 1 {
		s.Line(points[0], points[0], c, width)
		return
	}
	for i := 1; i < len(points); i++ {
		s.Line(points[i-1], points[i], c, width)
	}
}

func (s *BrailleSurface) FillCircle(center Point, radius float64, c color.RGBA) {
	r := int(math.Ceil(radius))
	cx, cy := int(math.Round(center.X)), int(math.Round(center.Y))
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			ddx, ddy := float64(x-cx), float64(y-cy)
			if ddx*ddx+ddy*ddy <= radius*radius {
				s.setDot(x, y, c)
			}
		}
	}
}

// Text places s in the cell containing p, one rune per cell.
func (s *BrailleSurface) Text(p Point, str string, c color.RGBA) {
	col, row := int(p.X)/2, int(p.Y)/4
	if row >= s.rows {
		row = s.rows - 1
	}
	if col < 0 || row < 0 {
		return
	}
	s.texts = append(s.texts, textOverlay{col: col, row: row, text: str, color: c})
}

// Dot reports whether the dot at x,y is lit.
func (s *BrailleSurface) Dot(x, y int) bool {
	i, bit, ok := s.locate(x, y)
	return ok && s.bits[i]&(1<<bit) != 0
}

// Rune returns the braille character for a cell.
func (s *BrailleSurface) Rune(col, row int) rune {
	return brailleBase + rune(s.bits[row*s.cols+col])
}

// Draw copies the surface onto screen with its top-left cell at x,y.
// It does not call Show.
func (s *BrailleSurface) Draw(screen tcell.Screen, x, y int) {
	bg := toTcell(s.background)
	for row := 0; row < s.rows; row++ {
		for col := 0; col < s.cols; col++ {
			i := row*s.cols + col
			style := tcell.StyleDefault.Background(bg).Foreground(toTcell(s.colors[i]))
			screen.SetContent(x+col, y+row, s.Rune(col, row), nil, style)
		}
	}
	for _, t := range s.texts {
		style := tcell.StyleDefault.Background(bg).Foreground(toTcell(t.color))
		col := t.col
		for _, r := range t.text {
			if col >= s.cols {
				break
			}
			screen.SetContent(x+col, y+t.row, r, nil, style)
			col++
		}
	}
}

func (s *BrailleSurface) setDot(x, y int, c color.RGBA) {
	i, bit, ok := s.locate(x, y)
	if !ok {
		return
	}
	s.bits[i] |= 1 << bit
	s.colors[i] = c
}

func (s *BrailleSurface) locate(x, y int) (idx int, bit uint, ok bool) {
	if x < 0 || y < 0 || x >= s.cols*2 || y >= s.rows*4 {
		return 0, 0, false
	}
	return (y/4)*s.cols + x/2, brailleBits[x%2][y%4], true
}

// toTcell converts a premultiplied colour, undoing the alpha so faint glows
// keep their hue on a terminal that has no blending.
func toTcell(c color.RGBA) tcell.Color {
	if c.A == 0 {
		return tcell.ColorDefault
	}
	un := func(v uint8) int32 {
		return int32(math.Min(255, float64(v)*255/float64(c.A)))
	}
	return tcell.NewRGBColor(un(c.R), un(c.G), un(c.B))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
