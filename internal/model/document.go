package model

import (
	"fmt"
	"time"
)

// Document 프로젝트별 화이트보드 문서 (projectId = primary key)
type Document struct {
	ProjectID      string        `json:"projectId" bson:"_id" firestore:"projectId"`
	Strokes        []Stroke      `json:"strokes" bson:"strokes" firestore:"strokes"`
	Shapes         []Shape       `json:"shapes" bson:"shapes" firestore:"shapes"`
	Texts          []TextElement `json:"texts" bson:"texts" firestore:"texts"`
	StickyNotes    []StickyNote  `json:"stickyNotes" bson:"stickyNotes" firestore:"stickyNotes"`
	Version        int64         `json:"version" bson:"version" firestore:"version"`
	LastCleared    *time.Time    `json:"lastCleared" bson:"lastCleared" firestore:"lastCleared"`
	LastMutationID string        `json:"lastMutationId,omitempty" bson:"lastMutationId,omitempty" firestore:"lastMutationId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// NewDocument returns an empty board at version 0.
func NewDocument(projectID string, now time.Time) *Document {
	d := &Document{
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.Normalize()
	return d
}

// Normalize replaces nil collections with empty ones so they encode as [] rather than null.
func (d *Document) Normalize() {
	if d.Strokes == nil {
		d.Strokes = []Stroke{}
	}
	if d.Shapes == nil {
		d.Shapes = []Shape{}
	}
	if d.Texts == nil {
		d.Texts = []TextElement{}
	}
	if d.StickyNotes == nil {
		d.StickyNotes = []StickyNote{}
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	out.Strokes = make([]Stroke, len(d.Strokes))
	for i, s := range d.Strokes {
		s.Points = append([]Point(nil), s.Points...)
		out.Strokes[i] = s
	}
	out.Shapes = append([]Shape{}, d.Shapes...)
	out.Texts = append([]TextElement{}, d.Texts...)
	out.StickyNotes = append([]StickyNote{}, d.StickyNotes...)
	if d.LastCleared != nil {
		t := *d.LastCleared
		out.LastCleared = &t
	}
	return out
}

// Len returns the number of elements of the given kind.
func (d Document) Len(kind ElementKind) int {
	switch kind {
	case KindStroke:
		return len(d.Strokes)
	case KindShape:
		return len(d.Shapes)
	case KindText:
		return len(d.Texts)
	case KindStickyNote:
		return len(d.StickyNotes)
	default:
		return 0
	}
}

// Empty reports whether the board holds no elements.
func (d Document) Empty() bool {
	for _, k := range AllKinds {
		if d.Len(k) > 0 {
			return false
		}
	}
	return true
}

// NewerThan orders two copies of the same board: a later clear epoch wins, and within one
// epoch the higher version wins.
func (d *Document) NewerThan(o *Document) bool {
	switch {
	case SameInstant(d.LastCleared, o.LastCleared):
		return d.Version > o.Version
	case d.LastCleared == nil:
		return false
	case o.LastCleared == nil:
		return true
	default:
		return d.LastCleared.After(*o.LastCleared)
	}
}

// SameInstant compares optional timestamps.
func SameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Append adds an element at the top of its collection.
func (d *Document) Append(el Element) error {
	switch e := el.(type) {
	case Stroke:
		d.Strokes = append(d.Strokes, e)
	case Shape:
		d.Shapes = append(d.Shapes, e)
	case TextElement:
		d.Texts = append(d.Texts, e)
	case StickyNote:
		d.StickyNotes = append(d.StickyNotes, e)
	default:
		return fmt.Errorf("%w: %T", ErrInvalidElementType, el)
	}
	return nil
}

// Find looks an element up by kind and id.
func (d *Document) Find(kind ElementKind, id string) (Element, bool) {
	switch kind {
	case KindStroke:
		if i := indexOf(d.Strokes, id); i >= 0 {
			return d.Strokes[i], true
		}
	case KindShape:
		if i := indexOf(d.Shapes, id); i >= 0 {
			return d.Shapes[i], true
		}
	case KindText:
		if i := indexOf(d.Texts, id); i >= 0 {
			return d.Texts[i], true
		}
	case KindStickyNote:
		if i := indexOf(d.StickyNotes, id); i >= 0 {
			return d.StickyNotes[i], true
		}
	}
	return nil, false
}

// Replace swaps the element with the same kind and id in place, keeping z-order.
func (d *Document) Replace(el Element) bool {
	switch e := el.(type) {
	case Stroke:
		return replaceByID(d.Strokes, e)
	case Shape:
		return replaceByID(d.Shapes, e)
	case TextElement:
		return replaceByID(d.Texts, e)
	case StickyNote:
		return replaceByID(d.StickyNotes, e)
	}
	return false
}

// Remove hard-deletes the element with the given id. Reports whether it existed.
func (d *Document) Remove(kind ElementKind, id string) (bool, error) {
	var ok bool
	switch kind {
	case KindStroke:
		d.Strokes, ok = removeByID(d.Strokes, id)
	case KindShape:
		d.Shapes, ok = removeByID(d.Shapes, id)
	case KindText:
		d.Texts, ok = removeByID(d.Texts, id)
	case KindStickyNote:
		d.StickyNotes, ok = removeByID(d.StickyNotes, id)
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidElementType, kind)
	}
	return ok, nil
}

// UpdateStickyNote applies a partial edit to a note. Identity and authorship are untouched.
func (d *Document) UpdateStickyNote(id string, f NoteFields) bool {
	i := indexOf(d.StickyNotes, id)
	if i < 0 {
		return false
	}
	f.apply(&d.StickyNotes[i])
	return true
}

// UpdateShape applies a partial edit to a shape.
func (d *Document) UpdateShape(id string, f ShapeFields) bool {
	i := indexOf(d.Shapes, id)
	if i < 0 {
		return false
	}
	f.apply(&d.Shapes[i])
	return true
}

// UpdateText applies a partial edit to a text element.
func (d *Document) UpdateText(id string, f TextFields) bool {
	i := indexOf(d.Texts, id)
	if i < 0 {
		return false
	}
	f.apply(&d.Texts[i])
	return true
}

// Reset empties every collection and opens a new clear epoch.
func (d *Document) Reset(now time.Time) {
	d.Strokes = []Stroke{}
	d.Shapes = []Shape{}
	d.Texts = []TextElement{}
	d.StickyNotes = []StickyNote{}
	d.Version = 0
	t := now
	d.LastCleared = &t
	d.UpdatedAt = now
}

// ClearedAfter reports whether the board was wiped after the client's last known clear.
// A client that never saw a clear (nil) is behind any clear the server has.
func (d *Document) ClearedAfter(clientLastCleared *time.Time) bool {
	if d.LastCleared == nil {
		return false
	}
	if clientLastCleared == nil {
		return true
	}
	return d.LastCleared.After(*clientLastCleared)
}

// Since returns a copy holding only elements created strictly after t.
func (d *Document) Since(t time.Time) Document {
	out := *d
	out.Strokes = createdAfter(d.Strokes, t)
	out.Shapes = createdAfter(d.Shapes, t)
	out.Texts = createdAfter(d.Texts, t)
	out.StickyNotes = createdAfter(d.StickyNotes, t)
	return out
}

func indexOf[T Element](items []T, id string) int {
	for i, it := range items {
		if it.ElementID() == id {
			return i
		}
	}
	return -1
}

func replaceByID[T Element](items []T, el T) bool {
	i := indexOf(items, el.ElementID())
	if i < 0 {
		return false
	}
	items[i] = el
	return true
}

func removeByID[T Element](items []T, id string) ([]T, bool) {
	out := make([]T, 0, len(items))
	found := false
	for _, it := range items {
		if it.ElementID() == id {
			found = true
			continue
		}
		out = append(out, it)
	}
	return out, found
}

func createdAfter[T Element](items []T, t time.Time) []T {
	out := make([]T, 0)
	for _, it := range items {
		if it.Meta().CreatedAt.After(t) {
			out = append(out, it)
		}
	}
	return out
}
