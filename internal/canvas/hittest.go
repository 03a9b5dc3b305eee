package canvas

import (
	"math"

	"whiteboard-backend/internal/model"
)

// TextMeasurer reports the rendered width of a string at a font size.
type TextMeasurer interface {
	MeasureText(content string, fontSize float64) float64
}

// HitShape reports whether p lies inside the shape expanded by r. Rectangles use their
// bounding box; circles use the inscribed ellipse.
func HitShape(s model.Shape, p model.Point, r float64) bool {
	x, y, w, h := normalizeBox(s.X, s.Y, s.Width, s.Height)
	switch s.Type {
	case model.ShapeCircle:
		rx, ry := w/2+r, h/2+r
		if rx <= 0 || ry <= 0 {
			return false
		}
		dx := (p.X - (x + w/2)) / rx
		dy := (p.Y - (y + h/2)) / ry
		return dx*dx+dy*dy <= 1
	default:
		return p.X >= x-r && p.X <= x+w+r && p.Y >= y-r && p.Y <= y+h+r
	}
}

// HitText reports whether p lies inside the measured box of t expanded by r. The box spans
// one font size above the baseline.
func HitText(t model.TextElement, p model.Point, r float64, m TextMeasurer) bool {
	x, y, w, h := TextBox(t, m)
	return p.X >= x-r && p.X <= x+w+r && p.Y >= y-r && p.Y <= y+h+r
}

// TextBox returns the bounding box of a text element.
func TextBox(t model.TextElement, m TextMeasurer) (x, y, w, h float64) {
	size := t.FontSize
	if size <= 0 {
		size = model.DefaultFontSize
	}
	return t.X, t.Y - size, m.MeasureText(t.Content, size), size
}

// EraserRadius 지우개 판정 반경
func EraserRadius(width float64) float64 {
	return width * 3
}

func normalizeBox(x, y, w, h float64) (float64, float64, float64, float64) {
	if w < 0 {
		x, w = x+w, -w
	}
	if h < 0 {
		y, h = y+h, -h
	}
	return x, y, w, h
}

// boxFromDrag returns the box spanned by two drag points.
func boxFromDrag(a, b model.Point) (x, y, w, h float64) {
	return math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Abs(b.X - a.X), math.Abs(b.Y - a.Y)
}
