package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/canvas"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/logging"
	"whiteboard-backend/internal/model"
)

func main() {
	projectID := flag.String("project", "", "project id of the board")
	asJSON := flag.Bool("json", false, "print the whole document as JSON")
	pngPath := flag.String("png", "", "write a PNG rendering to this path")
	flag.Parse()

	if *projectID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Log.Level = "warn"
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection failed", zap.Error(err))
	}
	defer backend.Close()

	fmt.Printf("✅ Connected to %s store\n\n", cfg.Store.Backend)

	doc, err := backend.Store.Get(ctx, *projectID)
	if err != nil {
		logger.Fatal("load board failed", zap.Error(err))
	}
	if doc == nil {
		fmt.Printf("⚠️  No whiteboard for project %q\n", *projectID)
		return
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			logger.Fatal("encode board failed", zap.Error(err))
		}
	} else {
		printSummary(doc)
	}

	if *pngPath != "" {
		img, err := canvas.RenderPNG(*doc, canvas.NewFontMeasurer(), canvas.DefaultExportOptions())
		if err != nil {
			logger.Fatal("render failed", zap.Error(err))
		}
		if err := os.WriteFile(*pngPath, img, 0o644); err != nil {
			logger.Fatal("write png failed", zap.Error(err))
		}
		fmt.Printf("\n🖼  Wrote %s (%d bytes)\n", *pngPath, len(img))
	}
}

func printSummary(doc *model.Document) {
	fmt.Printf("📋 Whiteboard %s\n", doc.ProjectID)
	fmt.Printf("  - Version: %d\n", doc.Version)
	if doc.LastCleared != nil {
		fmt.Printf("  - Last cleared: %s\n", doc.LastCleared.Format(time.RFC3339))
	} else {
		fmt.Println("  - Last cleared: never")
	}
	fmt.Printf("  - Updated: %s\n", doc.UpdatedAt.Format(time.RFC3339))
	fmt.Println()

	fmt.Println("📊 Elements:")
	for _, k := range model.AllKinds {
		fmt.Printf("  - %-11s %d\n", k.Field()+":", doc.Len(k))
	}

	authors := make(map[string]int)
	for _, s := range doc.Strokes {
		authors[s.UserName]++
	}
	for _, s := range doc.Shapes {
		authors[s.UserName]++
	}
	for _, t := range doc.Texts {
		authors[t.UserName]++
	}
	for _, n := range doc.StickyNotes {
		authors[n.UserName]++
	}
	if len(authors) > 0 {
		fmt.Println()
		fmt.Println("👤 Authors:")
		for name, n := range authors {
			fmt.Printf("  - %s: %d\n", name, n)
		}
	}
}
