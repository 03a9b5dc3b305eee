package server

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/canvas"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	log      *zap.Logger
	verifier auth.TokenVerifier

	whiteboardHandler   *handler.WhiteboardHandler
	whiteboardWSHandler *handler.WhiteboardWSHandler
	exportHandler       *handler.ExportHandler
	healthHandler       *handler.HealthHandler
}

// New 새 서버 인스턴스 생성. checks feeds the readiness probe; a nil tracker keeps
// presence in memory.
func New(cfg *config.Config, s store.DocumentStore, verifier auth.TokenVerifier, tracker presence.Tracker, checks map[string]handler.Pinger, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Whiteboard API",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384, // 16KB - 큰 헤더 허용
		WriteBufferSize:       16384,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	if checks == nil {
		checks = map[string]handler.Pinger{}
	}
	if _, ok := checks["store"]; !ok {
		checks["store"] = s
	}

	return &Server{
		app:                 app,
		cfg:                 cfg,
		log:                 log.Named("server"),
		verifier:            verifier,
		whiteboardHandler:   handler.NewWhiteboardHandler(s, log),
		whiteboardWSHandler: handler.NewWhiteboardWSHandler(s, tracker, cfg.WebSocket, log),
		exportHandler:       handler.NewExportHandler(s, canvas.NewFontMeasurer(), log),
		healthHandler:       handler.NewHealthHandler(checks),
	}
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: !s.cfg.IsProduction(),
	}))

	// 로깅
	if s.cfg.Server.AccessLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
			TimeZone:   "UTC",
		}))
	}

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.CORS.AllowOrigins,
		AllowHeaders:  joinHeaders(s.cfg.CORS.AllowHeaders, handler.MutationIDHeader),
		AllowMethods:  "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders: handler.MutationIDHeader,
	}))
}

// joinHeaders 비어 있지 않은 헤더 목록만 이어 붙인다
func joinHeaders(lists ...string) string {
	var out []string
	for _, l := range lists {
		for _, h := range strings.Split(l, ",") {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
	}
	return strings.Join(out, ", ")
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	requireAuth := auth.Middleware(s.verifier)

	// Whiteboard 라우트 그룹 (인증 필요)
	wb := s.app.Group("/api/whiteboard", s.rateLimiter(), requireAuth)
	wb.Get("", s.whiteboardHandler.GetWhiteboard)
	wb.Post("", s.whiteboardHandler.HandleWhiteboard)
	wb.Put("", s.whiteboardHandler.UpdateElement)
	wb.Delete("", s.whiteboardHandler.DeleteElement)
	wb.Get("/export.png", s.exportHandler.ExportPNG)
	wb.Get("/viewers", s.whiteboardWSHandler.Viewers)

	// WebSocket 화이트보드 실시간 엔드포인트
	s.app.Get("/ws/whiteboard",
		requireAuth,
		s.whiteboardWSHandler.Upgrade,
		websocket.New(s.whiteboardWSHandler.HandleWebSocket, websocket.Config{
			ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
		}))
}

// rateLimiter IP 기반 요청 제한. RATE_LIMIT_MAX=0이면 통과.
func (s *Server) rateLimiter() fiber.Handler {
	if s.cfg.Server.RateLimitMax <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        s.cfg.Server.RateLimitMax,
		Expiration: s.cfg.Server.RateLimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		s.log.Info("shutting down server", zap.String("signal", sig.String()))
		if err := s.Shutdown(); err != nil {
			s.log.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("whiteboard server starting",
		zap.String("addr", s.cfg.Server.Port),
		zap.String("websocket", "/ws/whiteboard"))

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
