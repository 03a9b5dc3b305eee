package model

import "time"

// Delta GET 응답 형식 (full board or elements created after `since`)
type Delta struct {
	Strokes         []Stroke      `json:"strokes"`
	Shapes          []Shape       `json:"shapes"`
	Texts           []TextElement `json:"texts"`
	StickyNotes     []StickyNote  `json:"stickyNotes"`
	LastCleared     *time.Time    `json:"lastCleared"`
	Version         int64         `json:"version"`
	BoardWasCleared bool          `json:"boardWasCleared"`
}

// BuildDelta computes the response for a client that last saw `since` and `clientLastCleared`.
// A clear newer than the client's takes precedence over since filtering.
func BuildDelta(doc *Document, since, clientLastCleared *time.Time) Delta {
	cleared := doc.ClearedAfter(clientLastCleared)
	view := *doc
	if since != nil && !cleared {
		view = doc.Since(*since)
	}
	view.Normalize()
	return Delta{
		Strokes:         view.Strokes,
		Shapes:          view.Shapes,
		Texts:           view.Texts,
		StickyNotes:     view.StickyNotes,
		LastCleared:     doc.LastCleared,
		Version:         doc.Version,
		BoardWasCleared: cleared,
	}
}

// Document converts the delta into a standalone document.
func (d Delta) Document(projectID string) Document {
	doc := Document{
		ProjectID:   projectID,
		Strokes:     d.Strokes,
		Shapes:      d.Shapes,
		Texts:       d.Texts,
		StickyNotes: d.StickyNotes,
		Version:     d.Version,
		LastCleared: d.LastCleared,
	}
	doc.Normalize()
	return doc
}

// Apply merges the delta into a local copy of the board. When the board was cleared, or
// full is set, the local collections are replaced; otherwise elements are upserted by id.
func (d Delta) Apply(local *Document, full bool) {
	if d.BoardWasCleared || full {
		projectID, createdAt := local.ProjectID, local.CreatedAt
		*local = d.Document(projectID)
		local.CreatedAt = createdAt
		return
	}
	local.Strokes = upsert(local.Strokes, d.Strokes)
	local.Shapes = upsert(local.Shapes, d.Shapes)
	local.Texts = upsert(local.Texts, d.Texts)
	local.StickyNotes = upsert(local.StickyNotes, d.StickyNotes)
	local.Version = d.Version
	local.LastCleared = d.LastCleared
	local.Normalize()
}

// Newest returns the latest createdAt carried by the delta, or zero.
func (d Delta) Newest() time.Time {
	var t time.Time
	t = newest(t, d.Strokes)
	t = newest(t, d.Shapes)
	t = newest(t, d.Texts)
	return newest(t, d.StickyNotes)
}

func upsert[T Element](items, incoming []T) []T {
	for _, el := range incoming {
		if i := indexOf(items, el.ElementID()); i >= 0 {
			items[i] = el
			continue
		}
		items = append(items, el)
	}
	return items
}

func newest[T Element](t time.Time, items []T) time.Time {
	for _, it := range items {
		if c := it.Meta().CreatedAt; c.After(t) {
			t = c
		}
	}
	return t
}
