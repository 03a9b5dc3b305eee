package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func stroke(id string, at time.Time) Stroke {
	s := Stroke{StrokeID: id, Points: []Point{{0, 0}, {1, 1}}, Color: "#000", Width: 2, Tool: ToolBrush}
	s.Stamp(Author{UserID: "u1", UserName: "Ann"}, at)
	return s
}

func TestNewElementIDUniqueWithinMillisecond(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewElementID(KindStroke, t0)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.Contains(t, id, "stroke_")
	}
}

func TestParseElementKind(t *testing.T) {
	for _, k := range AllKinds {
		got, err := ParseElementKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseElementKind("sticky")
	require.NoError(t, err)
	assert.Equal(t, KindStickyNote, got)

	_, err = ParseElementKind("arrow")
	assert.ErrorIs(t, err, ErrInvalidElementType)
}

func TestStrokeValidate(t *testing.T) {
	s := stroke("s1", t0)
	assert.NoError(t, s.Validate())

	s.Points = s.Points[:1]
	assert.ErrorIs(t, s.Validate(), ErrInvalidElement)

	s = stroke("s2", t0)
	s.Tool = "pencil"
	assert.ErrorIs(t, s.Validate(), ErrInvalidElement)
}

func TestDocumentAppendRemove(t *testing.T) {
	d := NewDocument("p1", t0)
	require.NoError(t, d.Append(stroke("s1", t0)))
	require.NoError(t, d.Append(stroke("s2", t0)))
	require.NoError(t, d.Append(Shape{ShapeID: "x1", Type: ShapeRectangle}))

	ok, err := d.Remove(KindStroke, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, d.Strokes, 1)
	assert.Equal(t, "s2", d.Strokes[0].StrokeID)

	ok, err = d.Remove(KindStroke, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Remove(ElementKind(42), "x1")
	assert.ErrorIs(t, err, ErrInvalidElementType)

	// 값 복사본에서도 바로 호출 가능
	assert.False(t, d.Clone().Empty())
	assert.Equal(t, 1, d.Clone().Len(KindShape))
	assert.True(t, NewDocument("p2", t0).Clone().Empty())
}

func TestUpdateStickyNoteKeepsIdentity(t *testing.T) {
	d := NewDocument("p1", t0)
	n := StickyNote{NoteID: "n1", Content: "hi", X: 10, Y: 20, Width: 150, Height: 150}
	n.Stamp(Author{UserID: "u1", UserName: "Ann"}, t0)
	require.NoError(t, d.Append(n))

	content := "bye"
	require.True(t, d.UpdateStickyNote("n1", NoteFields{Content: &content}))
	got := d.StickyNotes[0]
	assert.Equal(t, "bye", got.Content)
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 20.0, got.Y)
	assert.Equal(t, "n1", got.NoteID)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, d.UpdateStickyNote("n2", NoteFields{Content: &content}))
}

func TestMergeUpdates(t *testing.T) {
	d := NewDocument("p1", t0)
	sh := Shape{ShapeID: "x1", Type: ShapeRectangle, X: 1, Y: 2, Width: 30, Height: 40, Color: "#111"}
	sh.Stamp(Author{UserID: "u1", UserName: "Ann"}, t0)
	require.NoError(t, d.Append(sh))
	require.NoError(t, d.Append(stroke("s1", t0)))

	ok, err := d.MergeUpdates(KindShape, "x1", map[string]any{
		"x":       50.0,
		"color":   "#f00",
		"shapeId": "hijack",
		"userId":  "u2",
	})
	require.NoError(t, err)
	require.True(t, ok)
	got := d.Shapes[0]
	assert.Equal(t, 50.0, got.X)
	assert.Equal(t, 2.0, got.Y)
	assert.Equal(t, "#f00", got.Color)
	assert.Equal(t, "x1", got.ShapeID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.CreatedAt.Equal(t0))

	ok, err = d.MergeUpdates(KindShape, "nope", map[string]any{"x": 1.0})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.MergeUpdates(KindStroke, "s1", map[string]any{"color": "#f00"})
	assert.ErrorIs(t, err, ErrImmutableElement)

	_, err = d.MergeUpdates(KindShape, "x1", map[string]any{"type": "triangle"})
	assert.ErrorIs(t, err, ErrInvalidElement)
}

func TestResetOpensNewEpoch(t *testing.T) {
	d := NewDocument("p1", t0)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Append(stroke(NewElementID(KindStroke, t0), t0)))
	}
	d.Version = 7
	now := t0.Add(time.Minute)
	d.Reset(now)

	assert.True(t, d.Empty())
	assert.Equal(t, int64(0), d.Version)
	require.NotNil(t, d.LastCleared)
	assert.True(t, d.LastCleared.Equal(now))
}

func TestClearedAfter(t *testing.T) {
	d := NewDocument("p1", t0)
	assert.False(t, d.ClearedAfter(nil))

	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)
	d.Reset(t2)
	assert.True(t, d.ClearedAfter(nil))
	assert.True(t, d.ClearedAfter(&t1))
	assert.False(t, d.ClearedAfter(&t2))
}

func TestBuildDeltaClearTakesPrecedenceOverSince(t *testing.T) {
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	d := NewDocument("p1", t0)
	d.Reset(t2)
	require.NoError(t, d.Append(stroke("old", t2.Add(time.Second))))
	require.NoError(t, d.Append(stroke("new", t2.Add(time.Hour))))

	since := t2.Add(30 * time.Minute)
	delta := BuildDelta(d, &since, &t1)
	assert.True(t, delta.BoardWasCleared)
	assert.Len(t, delta.Strokes, 2)

	delta = BuildDelta(d, &since, &t2)
	assert.False(t, delta.BoardWasCleared)
	require.Len(t, delta.Strokes, 1)
	assert.Equal(t, "new", delta.Strokes[0].StrokeID)
	assert.NotNil(t, delta.Shapes)
}

func TestDeltaApply(t *testing.T) {
	local := NewDocument("p1", t0)
	require.NoError(t, local.Append(stroke("s1", t0)))

	delta := Delta{Strokes: []Stroke{stroke("s1", t0), stroke("s2", t0.Add(time.Second))}, Version: 3}
	delta.Apply(local, false)
	assert.Len(t, local.Strokes, 2)
	assert.Equal(t, int64(3), local.Version)
	assert.Equal(t, t0.Add(time.Second), delta.Newest())

	cleared := t0.Add(time.Hour)
	delta = Delta{Strokes: []Stroke{}, LastCleared: &cleared, BoardWasCleared: true}
	delta.Apply(local, false)
	assert.True(t, local.Empty())
	assert.Equal(t, "p1", local.ProjectID)
	assert.Equal(t, &cleared, local.LastCleared)
}

func TestCloneIsDeep(t *testing.T) {
	d := NewDocument("p1", t0)
	require.NoError(t, d.Append(stroke("s1", t0)))
	c := d.Clone()
	c.Strokes[0].Points[0].X = 99
	c.Strokes = append(c.Strokes, stroke("s2", t0))
	assert.Equal(t, 0.0, d.Strokes[0].Points[0].X)
	assert.Len(t, d.Strokes, 1)
}

func TestRecordRoundTrip(t *testing.T) {
	d := NewDocument("p1", t0)
	require.NoError(t, d.Append(stroke("s1", t0)))
	d.Version = 4
	rec := RecordFromDocument(d)
	back := rec.Document()
	assert.Equal(t, d.Strokes, back.Strokes)
	assert.Equal(t, int64(4), back.Version)
	assert.NotNil(t, back.StickyNotes)
}

func TestNewerThan(t *testing.T) {
	later := t0.Add(time.Second)
	cases := []struct {
		name string
		a, b Document
		want bool
	}{
		{"higher version same epoch", Document{Version: 3}, Document{Version: 2}, true},
		{"lower version same epoch", Document{Version: 1, LastCleared: &t0}, Document{Version: 2, LastCleared: &t0}, false},
		{"equal", Document{Version: 2}, Document{Version: 2}, false},
		{"clear beats version", Document{Version: 0, LastCleared: &t0}, Document{Version: 9}, true},
		{"never cleared loses", Document{Version: 9}, Document{Version: 0, LastCleared: &t0}, false},
		{"later clear wins", Document{LastCleared: &later}, Document{Version: 5, LastCleared: &t0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.NewerThan(&tc.b))
		})
	}
}
