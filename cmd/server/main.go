package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"whiteboard-backend/internal/archive"
	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/logging"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// 저장소 연결
	backend, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection failed", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	if err := backend.Store.Ping(ctx); err != nil {
		logger.Fatal("store ping failed", zap.Error(err))
	}

	boards, err := archive.Wrap(ctx, backend.Store, cfg.Archive, logger)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth, backend.Firebase)
	if err != nil {
		logger.Fatal("auth init failed", zap.Error(err))
	}

	// 접속자 추적 (Redis가 있으면 인스턴스 간 공유)
	var tracker presence.Tracker = presence.NewMemoryTracker(presence.DefaultTTL)
	checks := map[string]handler.Pinger{"store": backend.Store}
	if backend.Redis != nil {
		tracker = presence.NewManager(backend.Redis, presence.DefaultTTL)
		checks["redis"] = redisPinger{backend.Redis}
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, boards, verifier, tracker, checks, logger)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
