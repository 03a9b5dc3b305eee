package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/store"
)

func newServer(t *testing.T, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:            ":0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			BodyLimit:       1 << 20,
			RateLimitWindow: time.Minute,
		},
		WebSocket: config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, SendBufferSize: 4},
		CORS:      config.CORSConfig{AllowOrigins: "*", AllowHeaders: "Origin, Content-Type, Accept, Authorization"},
		Log:       config.LogConfig{Env: "development"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	jwt := auth.NewJWTManager("secret", time.Hour)
	token, err := jwt.GenerateAccessToken("u1", "", "Ann")
	require.NoError(t, err)

	s := New(cfg, store.NewMemoryStore(nil, logger), jwt, nil, nil, logger)
	s.SetupMiddleware()
	s.SetupRoutes()
	return s, token
}

func TestRoutes(t *testing.T) {
	s, token := newServer(t, nil)

	cases := []struct {
		method, target string
		body           string
		auth           bool
		want           int
	}{
		{http.MethodGet, "/health", "", false, http.StatusOK},
		{http.MethodGet, "/health/live", "", false, http.StatusOK},
		{http.MethodGet, "/health/ready", "", false, http.StatusOK},
		{http.MethodGet, "/api/whiteboard?projectId=p1", "", false, http.StatusUnauthorized},
		{http.MethodGet, "/api/whiteboard?projectId=p1", "", true, http.StatusOK},
		{http.MethodPost, "/api/whiteboard?projectId=p1", `{"action":"clear"}`, true, http.StatusOK},
		{http.MethodGet, "/api/whiteboard/export.png?projectId=p1", "", true, http.StatusOK},
		{http.MethodGet, "/api/whiteboard/viewers?projectId=p1", "", true, http.StatusOK},
		{http.MethodGet, "/ws/whiteboard?projectId=p1", "", true, http.StatusUpgradeRequired},
		{http.MethodGet, "/ws/whiteboard?projectId=p1", "", false, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := s.App().Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestRateLimit(t *testing.T) {
	s, token := newServer(t, func(c *config.Config) { c.Server.RateLimitMax = 2 })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/whiteboard?projectId=p1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := s.App().Test(req, -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSExposesMutationHeader(t *testing.T) {
	s, _ := newServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/whiteboard", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Mutation-Id")
}

func TestCORSWithoutConfiguredHeaders(t *testing.T) {
	s, _ := newServer(t, func(c *config.Config) { c.CORS.AllowHeaders = "" })

	req := httptest.NewRequest(http.MethodOptions, "/api/whiteboard", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "X-Mutation-Id", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestJoinHeaders(t *testing.T) {
	assert.Equal(t, "X-Mutation-Id", joinHeaders("", "X-Mutation-Id"))
	assert.Equal(t, "Origin, Accept, X-Mutation-Id", joinHeaders("Origin, ,Accept,", "X-Mutation-Id"))
}
