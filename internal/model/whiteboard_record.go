package model

import (
	"time"

	"gorm.io/datatypes"
)

// WhiteboardRecord 화이트보드 문서 테이블 (one row per project)
type WhiteboardRecord struct {
	ProjectID      string                           `gorm:"primaryKey;size:128" json:"project_id"`
	Strokes        datatypes.JSONSlice[Stroke]      `gorm:"not null" json:"strokes"`
	Shapes         datatypes.JSONSlice[Shape]       `gorm:"not null" json:"shapes"`
	Texts          datatypes.JSONSlice[TextElement] `gorm:"not null" json:"texts"`
	StickyNotes    datatypes.JSONSlice[StickyNote]  `gorm:"not null" json:"sticky_notes"`
	Version        int64                            `gorm:"not null;default:0" json:"version"`
	LastCleared    *time.Time                       `json:"last_cleared,omitempty"`
	LastMutationID string                           `gorm:"size:64" json:"last_mutation_id"`
	CreatedAt      time.Time                        `json:"created_at"`
	UpdatedAt      time.Time                        `gorm:"index" json:"updated_at"`
}

func (WhiteboardRecord) TableName() string {
	return "whiteboard_documents"
}

// RecordFromDocument converts a document to its table row.
func RecordFromDocument(d *Document) WhiteboardRecord {
	d.Normalize()
	return WhiteboardRecord{
		ProjectID:      d.ProjectID,
		Strokes:        datatypes.NewJSONSlice(d.Strokes),
		Shapes:         datatypes.NewJSONSlice(d.Shapes),
		Texts:          datatypes.NewJSONSlice(d.Texts),
		StickyNotes:    datatypes.NewJSONSlice(d.StickyNotes),
		Version:        d.Version,
		LastCleared:    d.LastCleared,
		LastMutationID: d.LastMutationID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Document converts the row back to the domain document.
func (r WhiteboardRecord) Document() *Document {
	d := &Document{
		ProjectID:      r.ProjectID,
		Strokes:        []Stroke(r.Strokes),
		Shapes:         []Shape(r.Shapes),
		Texts:          []TextElement(r.Texts),
		StickyNotes:    []StickyNote(r.StickyNotes),
		Version:        r.Version,
		LastCleared:    r.LastCleared,
		LastMutationID: r.LastMutationID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	d.Normalize()
	return d
}
