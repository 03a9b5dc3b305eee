// Package canvas turns pointer input into whiteboard mutations and draws board state onto a
// Surface.
package canvas

import (
	"context"
	"fmt"

	"whiteboard-backend/internal/model"
)

// Tool 활성 도구
type Tool int

const (
	ToolBrush Tool = iota
	ToolEraser
	ToolRectangle
	ToolCircle
	ToolText
	ToolSticky
)

func (t Tool) String() string {
	switch t {
	case ToolBrush:
		return "brush"
	case ToolEraser:
		return "eraser"
	case ToolRectangle:
		return "rectangle"
	case ToolCircle:
		return "circle"
	case ToolText:
		return "text"
	case ToolSticky:
		return "sticky"
	default:
		return "unknown"
	}
}

// ParseTool resolves a tool name.
func ParseTool(s string) (Tool, error) {
	for t := ToolBrush; t <= ToolSticky; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

// Style 현재 그리기 속성
type Style struct {
	Color     string
	FillColor string
	Width     float64
	FontSize  float64
}

// DefaultStyle returns the initial pen.
func DefaultStyle() Style {
	return Style{
		Color:     model.DefaultColor,
		FillColor: "transparent",
		Width:     model.DefaultStrokeWidth,
		FontSize:  model.DefaultFontSize,
	}
}

// Board is the mutation target of a Controller. *whiteboard.Client satisfies it.
type Board interface {
	Snapshot() model.Document
	AddStroke(ctx context.Context, s model.Stroke) (model.Stroke, error)
	AddShape(ctx context.Context, s model.Shape) (model.Shape, error)
	AddText(ctx context.Context, t model.TextElement) (model.TextElement, error)
	AddStickyNote(ctx context.Context, n model.StickyNote) (model.StickyNote, error)
	DeleteElement(ctx context.Context, kind model.ElementKind, id string) error
}
