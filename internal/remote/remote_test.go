package remote

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

type testServer struct {
	ln    *fasthttputil.InmemoryListener
	token string
	store store.DocumentStore
	ws    *handler.WhiteboardWSHandler
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := store.NewMemoryStore(nil, logger)
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwt.GenerateAccessToken("u-lee", "lee@example.com", "Lee")
	require.NoError(t, err)

	wb := handler.NewWhiteboardHandler(s, logger)
	ws := handler.NewWhiteboardWSHandler(s, nil, config.WebSocketConfig{SendBufferSize: 8, WriteTimeout: time.Second}, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api := app.Group("/api/whiteboard", auth.Middleware(jwt))
	api.Get("", wb.GetWhiteboard)
	api.Post("", wb.HandleWhiteboard)
	api.Put("", wb.UpdateElement)
	api.Delete("", wb.DeleteElement)
	app.Get("/ws/whiteboard", auth.Middleware(jwt), ws.Upgrade, websocket.New(ws.HandleWebSocket))

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &testServer{ln: ln, token: token, store: s, ws: ws}
}

func (s *testServer) client(t *testing.T, token string) *Client {
	t.Helper()
	c, err := NewClient("http://whiteboard.test", token,
		WithTimeout(2*time.Second),
		WithLogger(zaptest.NewLogger(t)),
		WithDialer(func(context.Context, string, string) (net.Conn, error) { return s.ln.Dial() }))
	require.NoError(t, err)
	return c
}

func brush(id string) model.Stroke {
	return model.Stroke{
		StrokeID: id,
		Points:   []model.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
		Color:    "#000000",
		Width:    2,
		Tool:     model.ToolBrush,
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := startServer(t)
	c := srv.client(t, srv.token)
	ctx := context.Background()

	res, err := c.Append(ctx, "p1", Elements{
		Strokes:     []model.Stroke{brush("s1")},
		StickyNotes: []model.StickyNote{{NoteID: "n1", Content: "todo", X: 5, Y: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
	assert.NotEmpty(t, res.MutationID)

	d, err := c.Fetch(ctx, "p1", nil, nil)
	require.NoError(t, err)
	require.Len(t, d.Strokes, 1)
	assert.Equal(t, "u-lee", d.Strokes[0].UserID)
	require.Len(t, d.StickyNotes, 1)

	res, err = c.UpdateElement(ctx, "p1", model.KindStickyNote, "n1", map[string]any{"content": "done"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)

	_, err = c.DeleteElement(ctx, "p1", model.KindStroke, "s1")
	require.NoError(t, err)

	doc, err := srv.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, doc.Strokes)
	assert.Equal(t, "done", doc.StickyNotes[0].Content)

	before := d.LastCleared
	res, err = c.Clear(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, res.LastCleared)

	d, err = c.Fetch(ctx, "p1", nil, before)
	require.NoError(t, err)
	assert.Empty(t, d.StickyNotes)
	assert.Equal(t, int64(0), d.Version)
}

func TestBoardsSurviveConnectionReuse(t *testing.T) {
	srv := startServer(t)
	c := srv.client(t, srv.token)
	ctx := context.Background()

	// 같은 keep-alive 연결에서 다른 프로젝트를 연달아 요청
	_, err := c.Append(ctx, "p1", Elements{Strokes: []model.Stroke{brush("s1")}})
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "zz", nil, nil)
	require.NoError(t, err)
	_, err = c.Append(ctx, "p2", Elements{Strokes: []model.Stroke{brush("s2")}})
	require.NoError(t, err)

	for _, pid := range []string{"p1", "zz", "p2"} {
		doc, err := srv.store.Get(ctx, pid)
		require.NoError(t, err)
		require.NotNil(t, doc, pid)
		assert.Equal(t, pid, doc.ProjectID)
	}

	d, err := c.Fetch(ctx, "p1", nil, nil)
	require.NoError(t, err)
	require.Len(t, d.Strokes, 1)
	assert.Equal(t, "s1", d.Strokes[0].StrokeID)
}

func TestClientErrors(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	_, err := srv.client(t, "bogus").Fetch(ctx, "p1", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	c := srv.client(t, srv.token)
	_, err = c.UpdateElement(ctx, "missing", model.KindShape, "x", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.UpdateElement(ctx, "p1", model.KindStroke, "x", nil)
	assert.Error(t, err)

	_, err = c.Append(ctx, "p1", Elements{})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = NewClient("ftp://whiteboard.test", srv.token)
	assert.Error(t, err)
}

func TestWatchDeliversSnapshotThenChanges(t *testing.T) {
	srv := startServer(t)
	c := srv.client(t, srv.token)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, "p1", func(ev Event) { events <- ev })
	}()

	next := func() Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("no event")
			return Event{}
		}
	}

	snap := next()
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, int64(0), snap.Document.Version)
	assert.Equal(t, 1, srv.ws.Connections("p1"))

	res, err := c.Append(context.Background(), "p1", Elements{Strokes: []model.Stroke{brush("s1")}})
	require.NoError(t, err)

	ev := next()
	assert.Equal(t, "change", ev.Type)
	assert.Equal(t, res.MutationID, ev.MutationID)
	assert.Len(t, ev.Document.Strokes, 1)

	_, err = c.Clear(context.Background(), "p1")
	require.NoError(t, err)
	ev = next()
	assert.True(t, ev.Cleared)
	assert.True(t, ev.Document.Empty())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Eventually(t, func() bool { return srv.ws.Connections("p1") == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatchRejectsBadToken(t *testing.T) {
	srv := startServer(t)
	err := srv.client(t, "bogus").Watch(context.Background(), "p1", func(Event) {})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPoller(t *testing.T) {
	srv := startServer(t)
	c := srv.client(t, srv.token)
	ctx := context.Background()
	p := NewPoller(c, "p1", time.Second)

	doc, changed, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, doc.Empty())

	_, err = c.Append(ctx, "p1", Elements{Strokes: []model.Stroke{brush("s1")}})
	require.NoError(t, err)
	doc, changed, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, doc.Strokes, 1)

	_, changed, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = c.Append(ctx, "p1", Elements{Strokes: []model.Stroke{brush("s2")}})
	require.NoError(t, err)
	doc, changed, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, doc.Strokes, 2)

	_, err = c.Clear(ctx, "p1")
	require.NoError(t, err)
	doc, changed, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, doc.Empty())
	assert.NotNil(t, doc.LastCleared)
}
