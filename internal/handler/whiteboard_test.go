package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/canvas"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/store"
)

type testEnv struct {
	app   *fiber.App
	store store.DocumentStore
	wb    *WhiteboardHandler
	token string
}

func newTestEnv(t *testing.T, s store.DocumentStore) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	if s == nil {
		s = store.NewMemoryStore(nil, logger)
	}
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwt.GenerateAccessToken("u-kim", "kim@example.com", "Kim")
	require.NoError(t, err)

	wb := NewWhiteboardHandler(s, logger)
	export := NewExportHandler(s, canvas.NewFontMeasurer(), logger)

	app := fiber.New()
	api := app.Group("/api/whiteboard", auth.Middleware(jwt))
	api.Get("/export.png", export.ExportPNG)
	api.Get("", wb.GetWhiteboard)
	api.Post("", wb.HandleWhiteboard)
	api.Put("", wb.UpdateElement)
	api.Delete("", wb.DeleteElement)

	return &testEnv{app: app, store: s, wb: wb, token: token}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) (int, map[string]any) {
	t.Helper()
	resp, raw := e.raw(t, method, target, body)
	out := map[string]any{}
	if len(raw) > 0 && resp.Header.Get("Content-Type") != "image/png" {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) raw(t *testing.T, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func strokeBody() map[string]any {
	return map[string]any{
		"strokeId": "stroke_1",
		"points":   []map[string]float64{{"x": 0, "y": 0}, {"x": 10, "y": 10}},
		"color":    "#000000",
		"width":    2,
		"tool":     "brush",
		"userId":   "spoofed",
	}
}

func TestWhiteboardRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.token = ""

	status, body := env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing authorization token", body["error"])

	// 인증 실패 시 보드가 생성되지 않는다
	doc, err := env.store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestWhiteboardRequiresProjectID(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		status, body := env.do(t, method, "/api/whiteboard", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, status, method)
		assert.Equal(t, "projectId is required", body["error"])
	}
}

func TestGetCreatesEmptyBoard(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["strokes"])
	assert.Equal(t, []any{}, body["stickyNotes"])
	assert.Equal(t, float64(0), body["version"])
	assert.Nil(t, body["lastCleared"])
	assert.Equal(t, false, body["boardWasCleared"])
}

func TestPostAppendsStampedElements(t *testing.T) {
	env := newTestEnv(t, nil)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.wb.now = func() time.Time { return fixed }

	status, body := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{
		"strokes":     []any{strokeBody()},
		"stickyNotes": []any{map[string]any{"content": "hi", "x": 10, "y": 20, "color": "#fff9c4"}},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["version"])

	doc, err := env.store.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, doc.Strokes, 1)
	s := doc.Strokes[0]
	assert.Equal(t, "stroke_1", s.StrokeID)
	assert.Equal(t, "u-kim", s.UserID)
	assert.Equal(t, "Kim", s.UserName)
	assert.True(t, fixed.Equal(s.CreatedAt))

	require.Len(t, doc.StickyNotes, 1)
	n := doc.StickyNotes[0]
	assert.NotEmpty(t, n.NoteID)
	assert.Equal(t, model.DefaultStickyWidth, n.Width)

	// 같은 id 재전송은 중복되지 않는다
	status, _ = env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"strokes": []any{strokeBody()}})
	require.Equal(t, http.StatusOK, status)
	doc, _ = env.store.Get(context.Background(), "p1")
	assert.Len(t, doc.Strokes, 1)
}

func TestPostRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	bad := strokeBody()
	bad["points"] = []map[string]float64{{"x": 0, "y": 0}}
	status, _ = env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"strokes": []any{bad}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"action": "undo"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClearViaPostAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	start := time.Now()

	for i := 0; i < 3; i++ {
		s := strokeBody()
		s["strokeId"] = "stroke_" + strconv.Itoa(i)
		status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"strokes": []any{s}})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"action": "clear"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["version"])
	cleared, err := time.Parse(time.RFC3339Nano, body["lastCleared"].(string))
	require.NoError(t, err)
	assert.False(t, cleared.Before(start.Truncate(time.Millisecond)))

	doc, _ := env.store.Get(context.Background(), "p1")
	assert.True(t, doc.Empty())

	status, body = env.do(t, http.MethodDelete, "/api/whiteboard?projectId=p2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, body["lastCleared"])
}

func TestGetSinceAndClearPrecedence(t *testing.T) {
	env := newTestEnv(t, nil)
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	post := func(at time.Time, id string) {
		env.wb.now = func() time.Time { return at }
		s := strokeBody()
		s["strokeId"] = id
		status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"strokes": []any{s}})
		require.Equal(t, http.StatusOK, status)
	}
	post(t1, "old")
	post(t2, "new")

	since := strconv.FormatInt(t1.UnixMilli(), 10)
	status, body := env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1&since="+since, nil)
	require.Equal(t, http.StatusOK, status)
	strokes := body["strokes"].([]any)
	require.Len(t, strokes, 1)
	assert.Equal(t, "new", strokes[0].(map[string]any)["strokeId"])
	assert.Equal(t, false, body["boardWasCleared"])

	// 클라이언트가 모르는 초기화가 있으면 since를 무시하고 전체를 돌려준다
	_, err := env.store.Clear(context.Background(), "p1", "m1")
	require.NoError(t, err)
	post(time.Now().Add(time.Hour), "after-clear")

	stale := t1.Format(time.RFC3339)
	future := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	status, body = env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1&since="+future+"&lastCleared="+stale, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["boardWasCleared"])
	assert.Len(t, body["strokes"].([]any), 1)

	status, _ = env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1&since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPutUpdatesElement(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{
		"stickyNotes": []any{map[string]any{"noteId": "note_1", "content": "hi", "x": 10, "y": 20}},
		"strokes":     []any{strokeBody()},
	})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPut, "/api/whiteboard?projectId=p1", map[string]any{
		"elementType": "stickyNote",
		"elementId":   "note_1",
		"updates":     map[string]any{"content": "bye", "userId": "spoofed"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), body["version"])

	doc, _ := env.store.Get(context.Background(), "p1")
	n := doc.StickyNotes[0]
	assert.Equal(t, "bye", n.Content)
	assert.Equal(t, 10.0, n.X)
	assert.Equal(t, 20.0, n.Y)
	assert.Equal(t, "note_1", n.NoteID)
	assert.Equal(t, "u-kim", n.UserID)

	cases := []struct {
		name   string
		target string
		body   map[string]any
		status int
	}{
		{"unknown type", "/api/whiteboard?projectId=p1", map[string]any{"elementType": "arrow", "elementId": "x"}, http.StatusBadRequest},
		{"stroke is immutable", "/api/whiteboard?projectId=p1", map[string]any{"elementType": "stroke", "elementId": "stroke_1", "updates": map[string]any{"color": "#fff"}}, http.StatusBadRequest},
		{"missing element", "/api/whiteboard?projectId=p1", map[string]any{"elementType": "text", "elementId": "nope", "updates": map[string]any{}}, http.StatusNotFound},
		{"missing board", "/api/whiteboard?projectId=none", map[string]any{"elementType": "stickyNote", "elementId": "note_1"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPut, tc.target, tc.body)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestDeleteElement(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{
		"shapes": []any{map[string]any{"shapeId": "shape_1", "type": "rectangle", "x": 1, "y": 1, "width": 20, "height": 20}},
	})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodDelete, "/api/whiteboard?projectId=p1&elementType=shape&elementId=shape_1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["version"])

	doc, _ := env.store.Get(context.Background(), "p1")
	assert.Empty(t, doc.Shapes)

	// 없는 요소: 200, 버전 유지
	status, body = env.do(t, http.MethodDelete, "/api/whiteboard?projectId=p1&elementType=shape&elementId=nope", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["version"])
	doc, _ = env.store.Get(context.Background(), "p1")
	assert.Equal(t, int64(2), doc.Version)

	status, _ = env.do(t, http.MethodDelete, "/api/whiteboard?projectId=p1&elementType=shape", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodDelete, "/api/whiteboard?projectId=p1&elementType=blob&elementId=x", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodDelete, "/api/whiteboard?projectId=nope&elementType=shape&elementId=x", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

type downStore struct {
	store.DocumentStore
}

func (downStore) GetOrCreate(context.Context, string) (*model.Document, error) {
	return nil, store.ErrUnavailable
}

func TestStoreFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t, downStore{store.NewMemoryStore(nil, zaptest.NewLogger(t))})

	status, body := env.do(t, http.MethodGet, "/api/whiteboard?projectId=p1", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["error"])
}

func TestMutationIDHeaderReachesSubscribers(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.store.GetOrCreate(context.Background(), "p1")
	require.NoError(t, err)

	got := make(chan store.Change, 1)
	unsub, err := env.store.Subscribe(context.Background(), "p1", func(c store.Change) { got <- c })
	require.NoError(t, err)
	defer unsub()

	data, _ := json.Marshal(map[string]any{"strokes": []any{strokeBody()}})
	req := httptest.NewRequest(http.MethodPost, "/api/whiteboard?projectId=p1", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set(MutationIDHeader, "m-123")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case c := <-got:
		assert.Equal(t, "m-123", c.MutationID)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestExportPNG(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.raw(t, http.MethodGet, "/api/whiteboard/export.png?projectId=p1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	status, _ := env.do(t, http.MethodPost, "/api/whiteboard?projectId=p1", map[string]any{"strokes": []any{strokeBody()}})
	require.Equal(t, http.StatusOK, status)

	resp, raw := env.raw(t, http.MethodGet, "/api/whiteboard/export.png?projectId=p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := parseTimestamp("")
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = parseTimestamp("1767225600000")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	ts, err = parseTimestamp("2026-01-01T09:00:00+09:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = parseTimestamp("soon")
	assert.ErrorIs(t, err, errInvalidTimestamp)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return store.ErrUnavailable })

	app := fiber.New()
	h := NewHealthHandler(map[string]Pinger{"store": ok, "redis": down})
	app.Get("/health", h.Check)
	app.Get("/health/ready", h.Readiness)
	app.Get("/health/live", h.Liveness)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Checks["store"].Status)
	assert.Equal(t, "unhealthy", body.Checks["redis"].Status)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestViewers(t *testing.T) {
	tracker := presence.NewMemoryTracker(time.Minute)
	ctx := context.Background()
	require.NoError(t, tracker.Join(ctx, "p1", presence.Viewer{ConnID: "c1", UserID: "u1", UserName: "Ann"}))
	require.NoError(t, tracker.Join(ctx, "p1", presence.Viewer{ConnID: "c2", UserID: "u1", UserName: "Ann"}))
	require.NoError(t, tracker.Join(ctx, "p1", presence.Viewer{ConnID: "c3", UserID: "u2", UserName: "Bo"}))

	ws := NewWhiteboardWSHandler(store.NewMemoryStore(nil, zaptest.NewLogger(t)), tracker, config.WebSocketConfig{}, zaptest.NewLogger(t))
	app := fiber.New()
	app.Get("/viewers", ws.Viewers)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/viewers?projectId=p1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Viewers []presence.Viewer `json:"viewers"`
		Users   int               `json:"users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Viewers, 3)
	assert.Equal(t, 2, body.Users)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/viewers", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
