package model

import "time"

// StrokeTool 획을 그린 도구
type StrokeTool string

const (
	ToolBrush  StrokeTool = "brush"
	ToolEraser StrokeTool = "eraser"
)

// ShapeType 도형 종류
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
)

// String 메서드
func (t StrokeTool) String() string {
	return string(t)
}

func (s ShapeType) String() string {
	return string(s)
}

// 요소 기본값
const (
	DefaultStickyWidth  = 150.0
	DefaultStickyHeight = 150.0
	DefaultFontSize     = 16.0
	DefaultStrokeWidth  = 2.0
	DefaultColor        = "#000000"
)

// StickyPalette 스티키 메모 파스텔 색상
var StickyPalette = []string{
	"#fff9c4", // yellow
	"#f8bbd0", // pink
	"#c8e6c9", // green
	"#bbdefb", // blue
	"#ffe0b2", // orange
	"#e1bee7", // purple
}

// TimestampLayout is the wire format for document timestamps.
const TimestampLayout = time.RFC3339Nano
