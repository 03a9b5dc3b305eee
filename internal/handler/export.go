package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"whiteboard-backend/internal/canvas"
	"whiteboard-backend/internal/store"
)

// ExportHandler 보드 PNG 내보내기
type ExportHandler struct {
	store  store.DocumentStore
	fonts  *canvas.FontMeasurer
	opts   canvas.ExportOptions
	logger *zap.Logger
}

// NewExportHandler ExportHandler 생성
func NewExportHandler(s store.DocumentStore, fonts *canvas.FontMeasurer, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		store:  s,
		fonts:  fonts,
		opts:   canvas.DefaultExportOptions(),
		logger: logger.Named("export"),
	}
}

// ExportPNG renders the board, sticky notes included.
func (h *ExportHandler) ExportPNG(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	doc, err := h.store.Get(c.UserContext(), projectID)
	if err != nil {
		h.logger.Error("export load failed", zap.String("projectId", projectID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whiteboard not found"})
	}

	png, err := canvas.RenderPNG(*doc, h.fonts, h.opts)
	if err != nil {
		h.logger.Error("export render failed", zap.String("projectId", projectID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}
