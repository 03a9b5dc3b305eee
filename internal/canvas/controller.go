package canvas

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
)

// MinShapeSize is the smallest drag, on both axes, that commits a shape.
const MinShapeSize = 5.0

// TextEntry 입력 중인 텍스트
type TextEntry struct {
	X       float64
	Y       float64
	Content string
}

// Overlay is transient input state drawn on top of committed elements.
type Overlay struct {
	Stroke *model.Stroke
	Shape  *model.Shape
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l.Named("canvas") }
}

// WithRand sets the source used to pick sticky note colors.
func WithRand(r *rand.Rand) ControllerOption {
	return func(c *Controller) { c.rand = r }
}

// WithMeasurer sets the text measurer used by eraser hit-testing.
func WithMeasurer(m TextMeasurer) ControllerOption {
	return func(c *Controller) { c.measurer = m }
}

// WithRedraw registers a callback invoked whenever the overlay changes.
func WithRedraw(fn func()) ControllerOption {
	return func(c *Controller) { c.redraw = fn }
}

// Controller 도구별 포인터 입력 상태 머신
//
// idle -> drawing on pointer-down -> idle on pointer-up or leave. Text entry stays open
// across pointer events until Enter, blur or Escape.
type Controller struct {
	board    Board
	logger   *zap.Logger
	rand     *rand.Rand
	measurer TextMeasurer
	redraw   func()

	mu      sync.Mutex
	tool    Tool
	style   Style
	drawing bool
	points  []model.Point
	start   model.Point
	current model.Point
	erased  map[string]struct{}
	entry   *TextEntry
}

// NewController 새 컨트롤러 생성
func NewController(board Board, opts ...ControllerOption) *Controller {
	c := &Controller{
		board:  board,
		logger: zap.NewNop(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		redraw: func() {},
		tool:   ToolBrush,
		style:  DefaultStyle(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.measurer == nil {
		c.measurer = NewFontMeasurer()
	}
	return c
}

// SetTool switches tools. An in-progress gesture is dropped.
func (c *Controller) SetTool(t Tool) {
	c.mu.Lock()
	c.tool = t
	c.resetGestureLocked()
	c.mu.Unlock()
	c.redraw()
}

// Tool returns the active tool.
func (c *Controller) Tool() Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

// SetStyle replaces the pen used for new elements.
func (c *Controller) SetStyle(s Style) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.style = s
}

// Drawing reports whether a gesture is in progress.
func (c *Controller) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

// PointerDown starts a gesture for the active tool.
func (c *Controller) PointerDown(ctx context.Context, p model.Point) error {
	c.mu.Lock()
	tool, style := c.tool, c.style
	pending := c.takeEntryLocked()
	c.mu.Unlock()

	// 열린 입력은 blur와 같이 커밋
	if pending != nil {
		if err := c.commitText(ctx, *pending, style); err != nil {
			return err
		}
	}

	switch tool {
	case ToolSticky:
		return c.commitSticky(ctx, p)

	case ToolText:
		c.mu.Lock()
		c.entry = &TextEntry{X: p.X, Y: p.Y}
		c.mu.Unlock()
		c.redraw()
		return nil

	case ToolBrush, ToolEraser, ToolRectangle, ToolCircle:
		c.mu.Lock()
		c.drawing = true
		c.start, c.current = p, p
		c.points = []model.Point{p}
		c.erased = map[string]struct{}{}
		c.mu.Unlock()
		c.redraw()
		if tool == ToolEraser {
			return c.erase(ctx, p, style.Width)
		}
	}
	return nil
}

// PointerMove extends the gesture.
func (c *Controller) PointerMove(ctx context.Context, p model.Point) error {
	c.mu.Lock()
	if !c.drawing {
		c.mu.Unlock()
		return nil
	}
	tool, width := c.tool, c.style.Width
	c.current = p
	if tool == ToolBrush || tool == ToolEraser {
		c.points = append(c.points, p)
	}
	c.mu.Unlock()
	c.redraw()

	if tool == ToolEraser {
		return c.erase(ctx, p, width)
	}
	return nil
}

// PointerUp finishes the gesture and commits its element, if any.
func (c *Controller) PointerUp(ctx context.Context, p model.Point) error {
	c.mu.Lock()
	if !c.drawing {
		c.mu.Unlock()
		return nil
	}
	if c.tool == ToolEraser {
		width := c.style.Width
		c.mu.Unlock()
		if err := c.erase(ctx, p, width); err != nil {
			return err
		}
		c.mu.Lock()
		if !c.drawing {
			c.mu.Unlock()
			return nil
		}
	}
	tool, style := c.tool, c.style
	start := c.start
	points := c.points
	if tool == ToolBrush || tool == ToolEraser {
		if last := points[len(points)-1]; last != p {
			points = append(points, p)
		}
	}
	c.resetGestureLocked()
	c.mu.Unlock()
	defer c.redraw()

	switch tool {
	case ToolBrush, ToolEraser:
		if len(points) < 2 {
			return nil
		}
		st := model.ToolBrush
		if tool == ToolEraser {
			st = model.ToolEraser
		}
		_, err := c.board.AddStroke(ctx, model.Stroke{
			Points: points,
			Color:  style.Color,
			Width:  style.Width,
			Tool:   st,
		})
		return err

	case ToolRectangle, ToolCircle:
		shape, ok := shapeFromDrag(tool, start, p, style)
		if !ok {
			return nil
		}
		_, err := c.board.AddShape(ctx, shape)
		return err
	}
	return nil
}

// PointerLeave ends the gesture at the last known position.
func (c *Controller) PointerLeave(ctx context.Context) error {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	return c.PointerUp(ctx, p)
}

// TypeText replaces the content of the open text entry.
func (c *Controller) TypeText(content string) {
	c.mu.Lock()
	if c.entry != nil {
		c.entry.Content = content
	}
	c.mu.Unlock()
	c.redraw()
}

// KeyDown handles Enter (commit) and Escape (cancel) for the open text entry.
func (c *Controller) KeyDown(ctx context.Context, key string) error {
	switch key {
	case "Enter":
		return c.Blur(ctx)
	case "Escape":
		c.mu.Lock()
		c.entry = nil
		c.mu.Unlock()
		c.redraw()
	}
	return nil
}

// Blur commits the open text entry. Empty text is discarded.
func (c *Controller) Blur(ctx context.Context) error {
	c.mu.Lock()
	entry, style := c.takeEntryLocked(), c.style
	c.mu.Unlock()
	if entry == nil {
		return nil
	}
	defer c.redraw()
	return c.commitText(ctx, *entry, style)
}

// Entry returns the open text entry, if any.
func (c *Controller) Entry() (TextEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return TextEntry{}, false
	}
	return *c.entry, true
}

// Overlay returns the in-progress stroke or shape preview.
func (c *Controller) Overlay() Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.drawing {
		return Overlay{}
	}
	switch c.tool {
	case ToolBrush, ToolEraser:
		st := model.ToolBrush
		if c.tool == ToolEraser {
			st = model.ToolEraser
		}
		return Overlay{Stroke: &model.Stroke{
			Points: append([]model.Point(nil), c.points...),
			Color:  c.style.Color,
			Width:  c.style.Width,
			Tool:   st,
		}}
	case ToolRectangle, ToolCircle:
		x, y, w, h := boxFromDrag(c.start, c.current)
		return Overlay{Shape: &model.Shape{
			Type: shapeType(c.tool), X: x, Y: y, Width: w, Height: h,
			Color: c.style.Color, FillColor: c.style.FillColor, StrokeWidth: c.style.Width,
		}}
	}
	return Overlay{}
}

// erase deletes every shape and text under the eraser point.
func (c *Controller) erase(ctx context.Context, p model.Point, width float64) error {
	r := EraserRadius(width)
	doc := c.board.Snapshot()

	type hit struct {
		kind model.ElementKind
		id   string
	}
	var hits []hit
	for _, s := range doc.Shapes {
		if HitShape(s, p, r) {
			hits = append(hits, hit{model.KindShape, s.ShapeID})
		}
	}
	for _, t := range doc.Texts {
		if HitText(t, p, r, c.measurer) {
			hits = append(hits, hit{model.KindText, t.TextID})
		}
	}

	for _, h := range hits {
		c.mu.Lock()
		_, done := c.erased[h.id]
		if c.erased != nil {
			c.erased[h.id] = struct{}{}
		}
		c.mu.Unlock()
		if done {
			continue
		}
		if err := c.board.DeleteElement(ctx, h.kind, h.id); err != nil {
			c.logger.Warn("eraser delete failed", zap.String("kind", h.kind.String()), zap.String("id", h.id), zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *Controller) commitText(ctx context.Context, e TextEntry, style Style) error {
	if e.Content == "" {
		return nil
	}
	size := style.FontSize
	if size <= 0 {
		size = model.DefaultFontSize
	}
	_, err := c.board.AddText(ctx, model.TextElement{
		Content:  e.Content,
		X:        e.X,
		Y:        e.Y,
		FontSize: size,
		Color:    style.Color,
	})
	return err
}

func (c *Controller) commitSticky(ctx context.Context, p model.Point) error {
	c.mu.Lock()
	color := model.StickyPalette[c.rand.Intn(len(model.StickyPalette))]
	c.mu.Unlock()

	_, err := c.board.AddStickyNote(ctx, model.StickyNote{
		X:      p.X,
		Y:      p.Y,
		Width:  model.DefaultStickyWidth,
		Height: model.DefaultStickyHeight,
		Color:  color,
	})
	return err
}

func (c *Controller) takeEntryLocked() *TextEntry {
	e := c.entry
	c.entry = nil
	return e
}

func (c *Controller) resetGestureLocked() {
	c.drawing = false
	c.points = nil
	c.erased = nil
}

// shapeFromDrag builds the shape spanned by a drag. Drags under MinShapeSize on either axis
// are rejected.
func shapeFromDrag(tool Tool, start, end model.Point, style Style) (model.Shape, bool) {
	x, y, w, h := boxFromDrag(start, end)
	if w < MinShapeSize || h < MinShapeSize {
		return model.Shape{}, false
	}
	return model.Shape{
		Type:        shapeType(tool),
		X:           x,
		Y:           y,
		Width:       w,
		Height:      h,
		Color:       style.Color,
		FillColor:   style.FillColor,
		StrokeWidth: style.Width,
	}, true
}

func shapeType(t Tool) model.ShapeType {
	if t == ToolCircle {
		return model.ShapeCircle
	}
	return model.ShapeRectangle
}
