package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/archive"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/logging"
	"whiteboard-backend/internal/model"
)

func main() {
	projectID := flag.String("project", "", "project id of the board to clear")
	yes := flag.Bool("yes", false, "confirm the clear")
	flag.Parse()

	if *projectID == "" || !*yes {
		log.Println("usage: clear_board -project <id> -yes")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection failed", zap.Error(err))
	}
	defer backend.Close()

	// 초기화 전 보관 (ARCHIVE_S3_BUCKET 설정 시)
	boards, err := archive.Wrap(ctx, backend.Store, cfg.Archive, logger)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	logger.Info("clearing whiteboard", zap.String("projectId", *projectID))
	doc, err := boards.Clear(ctx, *projectID, model.NewMutationID())
	if err != nil {
		logger.Fatal("clear failed", zap.Error(err))
	}

	logger.Info("whiteboard cleared",
		zap.String("projectId", *projectID),
		zap.Timep("lastCleared", doc.LastCleared))
}
