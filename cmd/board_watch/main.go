package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/logging"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/remote"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "whiteboard server base url")
	token := flag.String("token", os.Getenv("WHITEBOARD_TOKEN"), "access token (default $WHITEBOARD_TOKEN)")
	projectID := flag.String("project", "", "project id to watch")
	poll := flag.Duration("poll", 0, "poll interval; 0 uses the live websocket")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *projectID == "" || *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.New(config.LogConfig{Level: *level, Env: "development"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := remote.NewClient(*baseURL, *token, remote.WithLogger(logger))
	if err != nil {
		logger.Fatal("client init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *poll > 0 {
		err = remote.NewPoller(client, *projectID, *poll).Run(ctx, func(doc model.Document) {
			printBoard("poll", doc)
		})
	} else {
		err = client.Watch(ctx, *projectID, func(ev remote.Event) {
			label := ev.Type
			if ev.Cleared {
				label += " (cleared)"
			}
			printBoard(label, ev.Document)
		})
	}
	if err != nil {
		logger.Fatal("watch stopped", zap.Error(err))
	}
}

func printBoard(label string, doc model.Document) {
	fmt.Printf("%s  %-18s v%-4d strokes=%d shapes=%d texts=%d notes=%d\n",
		time.Now().Format("15:04:05"), label, doc.Version,
		len(doc.Strokes), len(doc.Shapes), len(doc.Texts), len(doc.StickyNotes))
}
