// Package store persists one versioned whiteboard document per project.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whiteboard-backend/internal/model"
)

var (
	ErrNotFound        = errors.New("whiteboard not found")
	ErrVersionConflict = errors.New("whiteboard version conflict")
	ErrUnavailable     = errors.New("whiteboard store unavailable")
	// ErrSubscriptionLost is carried by the last Change of a subscription that ended on
	// its own. No further changes follow it.
	ErrSubscriptionLost = errors.New("whiteboard subscription lost")
)

// DocumentStore 프로젝트별 화이트보드 문서 저장소
type DocumentStore interface {
	// GetOrCreate returns the board, creating an empty one (version 0) on first access.
	GetOrCreate(ctx context.Context, projectID string) (*model.Document, error)
	// Get returns nil without error when no board exists.
	Get(ctx context.Context, projectID string) (*model.Document, error)
	// Update replaces the supplied collections and increments version by one.
	Update(ctx context.Context, projectID string, p Patch) (*model.Document, error)
	// Clear empties every collection, sets lastCleared and resets version to 0. Upserts.
	Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error)
	// Subscribe invokes fn with the full document after every change until the returned
	// func is called or ctx is done. If the feed breaks first, fn gets one final Change
	// whose Err wraps ErrSubscriptionLost. fn must not call back into the store.
	Subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Patch 전체 컬렉션 교체 단위의 부분 업데이트. Nil collections are left untouched.
type Patch struct {
	Strokes     *[]model.Stroke
	Shapes      *[]model.Shape
	Texts       *[]model.TextElement
	StickyNotes *[]model.StickyNote

	// MutationID correlates the resulting change notification with this write.
	MutationID string
	// IfVersion turns the write into a compare-and-swap on version.
	IfVersion *int64
}

// PatchFor builds a patch carrying copies of the given collections of doc.
func PatchFor(doc *model.Document, kinds ...model.ElementKind) Patch {
	var p Patch
	for _, k := range kinds {
		switch k {
		case model.KindStroke:
			s := append([]model.Stroke{}, doc.Strokes...)
			p.Strokes = &s
		case model.KindShape:
			s := append([]model.Shape{}, doc.Shapes...)
			p.Shapes = &s
		case model.KindText:
			s := append([]model.TextElement{}, doc.Texts...)
			p.Texts = &s
		case model.KindStickyNote:
			s := append([]model.StickyNote{}, doc.StickyNotes...)
			p.StickyNotes = &s
		}
	}
	return p
}

// Empty reports whether the patch replaces nothing.
func (p Patch) Empty() bool {
	return p.Strokes == nil && p.Shapes == nil && p.Texts == nil && p.StickyNotes == nil
}

// Kinds lists the collections the patch replaces.
func (p Patch) Kinds() []model.ElementKind {
	var out []model.ElementKind
	if p.Strokes != nil {
		out = append(out, model.KindStroke)
	}
	if p.Shapes != nil {
		out = append(out, model.KindShape)
	}
	if p.Texts != nil {
		out = append(out, model.KindText)
	}
	if p.StickyNotes != nil {
		out = append(out, model.KindStickyNote)
	}
	return out
}

// Apply writes the patch into doc and advances its version.
func (p Patch) Apply(doc *model.Document, now time.Time) {
	if p.Strokes != nil {
		doc.Strokes = append([]model.Stroke{}, *p.Strokes...)
	}
	if p.Shapes != nil {
		doc.Shapes = append([]model.Shape{}, *p.Shapes...)
	}
	if p.Texts != nil {
		doc.Texts = append([]model.TextElement{}, *p.Texts...)
	}
	if p.StickyNotes != nil {
		doc.StickyNotes = append([]model.StickyNote{}, *p.StickyNotes...)
	}
	doc.Version++
	doc.UpdatedAt = now
	doc.LastMutationID = p.MutationID
}

// Change 구독자에게 전달되는 변경 알림
type Change struct {
	ProjectID  string         `json:"projectId"`
	Document   model.Document `json:"document"`
	MutationID string         `json:"mutationId,omitempty"`
	Cleared    bool           `json:"cleared,omitempty"`

	// Err is set only on the final change of a broken subscription.
	Err error `json:"-"`
}

func lost(projectID string, err error) Change {
	return Change{ProjectID: projectID, Err: fmt.Errorf("%w: %w", ErrSubscriptionLost, err)}
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp returns now in UTC rounded up to whole milliseconds, the finest precision every
// backend keeps, so stored times are never earlier than the call.
func (o options) timestamp() time.Time {
	t := o.now().UTC()
	if r := t.Truncate(time.Millisecond); !r.Equal(t) {
		return r.Add(time.Millisecond)
	}
	return t
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func checkVersion(doc *model.Document, p Patch) error {
	if p.IfVersion != nil && doc.Version != *p.IfVersion {
		return fmt.Errorf("%w: have %d, want %d", ErrVersionConflict, doc.Version, *p.IfVersion)
	}
	return nil
}
