package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidElementType = errors.New("invalid element type")
	ErrInvalidElement     = errors.New("invalid element")
)

// ElementKind 화이트보드 요소 종류. The set is closed: every switch over it is exhaustive.
type ElementKind uint8

const (
	KindStroke ElementKind = iota + 1
	KindShape
	KindText
	KindStickyNote
)

// AllKinds lists every kind in document field order.
var AllKinds = []ElementKind{KindStroke, KindShape, KindText, KindStickyNote}

// String returns the wire name used by the REST surface (elementType).
func (k ElementKind) String() string {
	switch k {
	case KindStroke:
		return "stroke"
	case KindShape:
		return "shape"
	case KindText:
		return "text"
	case KindStickyNote:
		return "stickyNote"
	default:
		return "unknown"
	}
}

// Field returns the document field holding elements of this kind.
func (k ElementKind) Field() string {
	switch k {
	case KindStroke:
		return "strokes"
	case KindShape:
		return "shapes"
	case KindText:
		return "texts"
	case KindStickyNote:
		return "stickyNotes"
	default:
		return ""
	}
}

// ParseElementKind resolves a wire name to a kind.
func ParseElementKind(s string) (ElementKind, error) {
	switch s {
	case "stroke":
		return KindStroke, nil
	case "shape":
		return KindShape, nil
	case "text":
		return KindText, nil
	case "stickyNote", "sticky":
		return KindStickyNote, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidElementType, s)
	}
}

// Envelope 모든 요소에 공통인 작성자/생성 시각 정보
type Envelope struct {
	UserID    string    `json:"userId" bson:"userId" firestore:"userId"`
	UserName  string    `json:"userName" bson:"userName" firestore:"userName"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// Author identifies who creates elements.
type Author struct {
	UserID   string
	UserName string
}

// Stamp fills the envelope for a newly created element.
func (e *Envelope) Stamp(a Author, now time.Time) {
	e.UserID = a.UserID
	e.UserName = a.UserName
	e.CreatedAt = now
}

// Element is implemented by the four element types.
type Element interface {
	Kind() ElementKind
	ElementID() string
	Meta() Envelope
}

// Point 좌표
type Point struct {
	X float64 `json:"x" bson:"x" firestore:"x"`
	Y float64 `json:"y" bson:"y" firestore:"y"`
}

// Stroke 자유 곡선. Immutable once committed.
type Stroke struct {
	StrokeID string     `json:"strokeId" bson:"strokeId" firestore:"strokeId"`
	Points   []Point    `json:"points" bson:"points" firestore:"points"`
	Color    string     `json:"color" bson:"color" firestore:"color"`
	Width    float64    `json:"width" bson:"width" firestore:"width"`
	Tool     StrokeTool `json:"tool" bson:"tool" firestore:"tool"`
	Envelope `bson:",inline"`
}

func (s Stroke) Kind() ElementKind { return KindStroke }
func (s Stroke) ElementID() string { return s.StrokeID }
func (s Stroke) Meta() Envelope    { return s.Envelope }

// Validate checks that the stroke is drawable.
func (s Stroke) Validate() error {
	if len(s.Points) < 2 {
		return fmt.Errorf("%w: stroke needs at least 2 points", ErrInvalidElement)
	}
	switch s.Tool {
	case ToolBrush, ToolEraser:
	default:
		return fmt.Errorf("%w: unknown stroke tool %q", ErrInvalidElement, s.Tool)
	}
	return nil
}

// Shape 사각형/원
type Shape struct {
	ShapeID     string    `json:"shapeId" bson:"shapeId" firestore:"shapeId"`
	Type        ShapeType `json:"type" bson:"type" firestore:"type"`
	X           float64   `json:"x" bson:"x" firestore:"x"`
	Y           float64   `json:"y" bson:"y" firestore:"y"`
	Width       float64   `json:"width" bson:"width" firestore:"width"`
	Height      float64   `json:"height" bson:"height" firestore:"height"`
	Color       string    `json:"color" bson:"color" firestore:"color"`
	FillColor   string    `json:"fillColor" bson:"fillColor" firestore:"fillColor"`
	StrokeWidth float64   `json:"strokeWidth" bson:"strokeWidth" firestore:"strokeWidth"`
	Envelope    `bson:",inline"`
}

func (s Shape) Kind() ElementKind { return KindShape }
func (s Shape) ElementID() string { return s.ShapeID }
func (s Shape) Meta() Envelope    { return s.Envelope }

func (s Shape) Validate() error {
	switch s.Type {
	case ShapeRectangle, ShapeCircle:
		return nil
	default:
		return fmt.Errorf("%w: unknown shape type %q", ErrInvalidElement, s.Type)
	}
}

// TextElement 텍스트. (X, Y) is the baseline anchor.
type TextElement struct {
	TextID   string  `json:"textId" bson:"textId" firestore:"textId"`
	Content  string  `json:"content" bson:"content" firestore:"content"`
	X        float64 `json:"x" bson:"x" firestore:"x"`
	Y        float64 `json:"y" bson:"y" firestore:"y"`
	FontSize float64 `json:"fontSize" bson:"fontSize" firestore:"fontSize"`
	Color    string  `json:"color" bson:"color" firestore:"color"`
	Envelope `bson:",inline"`
}

func (t TextElement) Kind() ElementKind { return KindText }
func (t TextElement) ElementID() string { return t.TextID }
func (t TextElement) Meta() Envelope    { return t.Envelope }

// StickyNote 스티키 메모
type StickyNote struct {
	NoteID   string  `json:"noteId" bson:"noteId" firestore:"noteId"`
	Content  string  `json:"content" bson:"content" firestore:"content"`
	X        float64 `json:"x" bson:"x" firestore:"x"`
	Y        float64 `json:"y" bson:"y" firestore:"y"`
	Width    float64 `json:"width" bson:"width" firestore:"width"`
	Height   float64 `json:"height" bson:"height" firestore:"height"`
	Color    string  `json:"color" bson:"color" firestore:"color"`
	Envelope `bson:",inline"`
}

func (n StickyNote) Kind() ElementKind { return KindStickyNote }
func (n StickyNote) ElementID() string { return n.NoteID }
func (n StickyNote) Meta() Envelope    { return n.Envelope }

// NoteFields is a partial sticky note edit. Nil fields are left untouched.
type NoteFields struct {
	Content *string
	X       *float64
	Y       *float64
	Width   *float64
	Height  *float64
	Color   *string
}

func (f NoteFields) apply(n *StickyNote) {
	if f.Content != nil {
		n.Content = *f.Content
	}
	if f.X != nil {
		n.X = *f.X
	}
	if f.Y != nil {
		n.Y = *f.Y
	}
	if f.Width != nil {
		n.Width = *f.Width
	}
	if f.Height != nil {
		n.Height = *f.Height
	}
	if f.Color != nil {
		n.Color = *f.Color
	}
}

// ShapeFields is a partial shape edit.
type ShapeFields struct {
	X           *float64
	Y           *float64
	Width       *float64
	Height      *float64
	Color       *string
	FillColor   *string
	StrokeWidth *float64
}

func (f ShapeFields) apply(s *Shape) {
	if f.X != nil {
		s.X = *f.X
	}
	if f.Y != nil {
		s.Y = *f.Y
	}
	if f.Width != nil {
		s.Width = *f.Width
	}
	if f.Height != nil {
		s.Height = *f.Height
	}
	if f.Color != nil {
		s.Color = *f.Color
	}
	if f.FillColor != nil {
		s.FillColor = *f.FillColor
	}
	if f.StrokeWidth != nil {
		s.StrokeWidth = *f.StrokeWidth
	}
}

// TextFields is a partial text edit.
type TextFields struct {
	Content  *string
	X        *float64
	Y        *float64
	FontSize *float64
	Color    *string
}

func (f TextFields) apply(t *TextElement) {
	if f.Content != nil {
		t.Content = *f.Content
	}
	if f.X != nil {
		t.X = *f.X
	}
	if f.Y != nil {
		t.Y = *f.Y
	}
	if f.FontSize != nil {
		t.FontSize = *f.FontSize
	}
	if f.Color != nil {
		t.Color = *f.Color
	}
}
