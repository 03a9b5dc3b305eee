package canvas

import (
	"whiteboard-backend/internal/model"
)

// Composite 합성 모드
type Composite int

const (
	CompositeSourceOver Composite = iota
	// CompositeDestinationOut removes already drawn pixels under the source.
	CompositeDestinationOut
)

// ShapeStyle is the paint for a rectangle or ellipse outline.
type ShapeStyle struct {
	Color  string
	Fill   string
	Width  float64
	Dashed bool
}

// Surface is a 2D drawing target.
type Surface interface {
	Clear()
	SetComposite(Composite)
	Polyline(points []model.Point, color string, width float64)
	Rect(x, y, w, h float64, st ShapeStyle)
	Ellipse(cx, cy, rx, ry float64, st ShapeStyle)
	Text(content string, x, y, fontSize float64, color string)
}

// PreviewDash is the dash pattern of the in-progress shape outline.
var PreviewDash = []float64{5, 5}

// RenderOptions controls what a full redraw includes.
type RenderOptions struct {
	// StickyNotes draws notes on the surface. Interactive views keep them as overlays.
	StickyNotes bool
}

// Renderer 보드 상태 전체 다시 그리기
type Renderer struct {
	opts RenderOptions
}

// NewRenderer creates a renderer.
func NewRenderer(opts RenderOptions) *Renderer {
	return &Renderer{opts: opts}
}

// Render clears the surface and draws strokes in order, then shapes, the shape preview and
// texts.
func (r *Renderer) Render(s Surface, doc model.Document, ov Overlay) {
	s.Clear()

	for _, st := range doc.Strokes {
		drawStroke(s, st)
	}
	if ov.Stroke != nil {
		drawStroke(s, *ov.Stroke)
	}
	s.SetComposite(CompositeSourceOver)

	for _, sh := range doc.Shapes {
		drawShape(s, sh, false)
	}
	if ov.Shape != nil {
		drawShape(s, *ov.Shape, true)
	}

	for _, t := range doc.Texts {
		size := t.FontSize
		if size <= 0 {
			size = model.DefaultFontSize
		}
		s.Text(t.Content, t.X, t.Y, size, t.Color)
	}

	if r.opts.StickyNotes {
		for _, n := range doc.StickyNotes {
			drawStickyNote(s, n)
		}
	}
}

func drawStroke(s Surface, st model.Stroke) {
	if len(st.Points) < 2 {
		return
	}
	if st.Tool == model.ToolEraser {
		s.SetComposite(CompositeDestinationOut)
	} else {
		s.SetComposite(CompositeSourceOver)
	}
	s.Polyline(st.Points, st.Color, st.Width)
}

func drawShape(s Surface, sh model.Shape, preview bool) {
	x, y, w, h := normalizeBox(sh.X, sh.Y, sh.Width, sh.Height)
	style := ShapeStyle{Color: sh.Color, Fill: sh.FillColor, Width: sh.StrokeWidth, Dashed: preview}
	switch sh.Type {
	case model.ShapeCircle:
		s.Ellipse(x+w/2, y+h/2, w/2, h/2, style)
	default:
		s.Rect(x, y, w, h, style)
	}
}

const stickyPadding = 8.0

func drawStickyNote(s Surface, n model.StickyNote) {
	w, h := n.Width, n.Height
	if w <= 0 {
		w = model.DefaultStickyWidth
	}
	if h <= 0 {
		h = model.DefaultStickyHeight
	}
	s.Rect(n.X, n.Y, w, h, ShapeStyle{Color: n.Color, Fill: n.Color, Width: 1})
	if n.Content != "" {
		s.Text(n.Content, n.X+stickyPadding, n.Y+stickyPadding+model.DefaultFontSize, model.DefaultFontSize, model.DefaultColor)
	}
}
