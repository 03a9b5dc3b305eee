package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrImmutableElement strokes are never edited in place.
var ErrImmutableElement = errors.New("element is immutable")

// protectedKeys 업데이트로 변경할 수 없는 필드
var protectedKeys = map[string]bool{
	"userId":    true,
	"userName":  true,
	"createdAt": true,
	"strokeId":  true,
	"shapeId":   true,
	"textId":    true,
	"noteId":    true,
}

// MergeUpdates overlays a loosely typed field map onto the element with the given id.
// Identity and authorship keys are ignored. Reports false when no such element exists.
func (d *Document) MergeUpdates(kind ElementKind, id string, updates map[string]any) (bool, error) {
	switch kind {
	case KindStroke:
		return false, fmt.Errorf("%w: %s", ErrImmutableElement, kind)
	case KindShape, KindText, KindStickyNote:
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidElementType, kind)
	}

	current, ok := d.Find(kind, id)
	if !ok {
		return false, nil
	}

	raw, err := json.Marshal(current)
	if err != nil {
		return false, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}
	for k, v := range updates {
		if protectedKeys[k] {
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return false, err
	}

	var next Element
	switch kind {
	case KindShape:
		var s Shape
		if err = json.Unmarshal(merged, &s); err == nil {
			err = s.Validate()
		}
		next = s
	case KindText:
		var t TextElement
		err = json.Unmarshal(merged, &t)
		next = t
	case KindStickyNote:
		var n StickyNote
		err = json.Unmarshal(merged, &n)
		next = n
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	return d.Replace(next), nil
}
