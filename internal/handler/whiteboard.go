package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// MutationIDHeader lets REST callers correlate their writes with live notifications.
const MutationIDHeader = "X-Mutation-Id"

var errInvalidTimestamp = errors.New("invalid timestamp")

// WhiteboardHandler 화이트보드 REST 핸들러
type WhiteboardHandler struct {
	store  store.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

// NewWhiteboardHandler WhiteboardHandler 생성
func NewWhiteboardHandler(s store.DocumentStore, logger *zap.Logger) *WhiteboardHandler {
	return &WhiteboardHandler{
		store:  s,
		logger: logger.Named("whiteboard"),
		now:    time.Now,
	}
}

// WhiteboardPostRequest POST 요청 본문
type WhiteboardPostRequest struct {
	Strokes     []model.Stroke      `json:"strokes,omitempty"`
	Shapes      []model.Shape       `json:"shapes,omitempty"`
	Texts       []model.TextElement `json:"texts,omitempty"`
	StickyNotes []model.StickyNote  `json:"stickyNotes,omitempty"`
	Action      string              `json:"action,omitempty"`
}

// WhiteboardPutRequest PUT 요청 본문
type WhiteboardPutRequest struct {
	ElementType string         `json:"elementType"`
	ElementID   string         `json:"elementId"`
	Updates     map[string]any `json:"updates"`
}

// GetWhiteboard 보드 조회 (since 이후 요소만 또는 전체)
func (h *WhiteboardHandler) GetWhiteboard(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}
	since, err := parseTimestamp(c.Query("since"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid since"})
	}
	lastCleared, err := parseTimestamp(c.Query("lastCleared"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid lastCleared"})
	}

	doc, err := h.store.GetOrCreate(c.UserContext(), projectID)
	if err != nil {
		return h.storeError(c, "get", projectID, err)
	}

	return c.JSON(model.BuildDelta(doc, since, lastCleared))
}

// HandleWhiteboard 요소 추가 또는 action:"clear"
func (h *WhiteboardHandler) HandleWhiteboard(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	var req WhiteboardPostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	switch req.Action {
	case "":
	case "clear":
		return h.clear(c, projectID)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown action"})
	}

	elements, err := h.stamp(c, req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if len(elements) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no elements to add"})
	}

	doc, err := h.store.GetOrCreate(c.UserContext(), projectID)
	if err != nil {
		return h.storeError(c, "append", projectID, err)
	}

	var kinds []model.ElementKind
	seen := make(map[model.ElementKind]bool)
	for _, el := range elements {
		// 같은 id 재전송은 덮어쓰기
		if !doc.Replace(el) {
			if err := doc.Append(el); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid element type"})
			}
		}
		if !seen[el.Kind()] {
			seen[el.Kind()] = true
			kinds = append(kinds, el.Kind())
		}
	}

	out, err := h.store.Update(c.UserContext(), projectID, h.patch(c, doc, kinds...))
	if err != nil {
		return h.storeError(c, "append", projectID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"version": out.Version,
	})
}

// UpdateElement 요소 필드 부분 수정
func (h *WhiteboardHandler) UpdateElement(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	var req WhiteboardPutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	kind, err := model.ParseElementKind(req.ElementType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid element type"})
	}
	if req.ElementID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "elementId is required"})
	}

	doc, err := h.store.Get(c.UserContext(), projectID)
	if err != nil {
		return h.storeError(c, "update", projectID, err)
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whiteboard not found"})
	}

	found, err := doc.MergeUpdates(kind, req.ElementID, req.Updates)
	switch {
	case errors.Is(err, model.ErrImmutableElement), errors.Is(err, model.ErrInvalidElement), errors.Is(err, model.ErrInvalidElementType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return h.storeError(c, "update", projectID, err)
	case !found:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "element not found"})
	}

	out, err := h.store.Update(c.UserContext(), projectID, h.patch(c, doc, kind))
	if err != nil {
		return h.storeError(c, "update", projectID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"version": out.Version,
	})
}

// DeleteElement 요소 삭제 (elementType/elementId 생략 시 보드 초기화)
func (h *WhiteboardHandler) DeleteElement(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	elementType, elementID := c.Query("elementType"), c.Query("elementId")
	if elementType == "" && elementID == "" {
		return h.clear(c, projectID)
	}
	if elementType == "" || elementID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "elementType and elementId are required together"})
	}

	kind, err := model.ParseElementKind(elementType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid element type"})
	}

	doc, err := h.store.Get(c.UserContext(), projectID)
	if err != nil {
		return h.storeError(c, "delete", projectID, err)
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whiteboard not found"})
	}

	found, err := doc.Remove(kind, elementID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid element type"})
	}
	// 없는 요소 삭제는 쓰기 없이 현재 버전을 돌려준다
	if !found {
		return c.JSON(fiber.Map{
			"success": true,
			"version": doc.Version,
		})
	}

	out, err := h.store.Update(c.UserContext(), projectID, h.patch(c, doc, kind))
	if err != nil {
		return h.storeError(c, "delete", projectID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"version": out.Version,
	})
}

func (h *WhiteboardHandler) clear(c *fiber.Ctx, projectID string) error {
	doc, err := h.store.Clear(c.UserContext(), projectID, mutationID(c))
	if err != nil {
		return h.storeError(c, "clear", projectID, err)
	}

	id, _ := auth.IdentityFrom(c)
	h.logger.Info("whiteboard cleared",
		zap.String("projectId", projectID),
		zap.String("userId", id.UserID))

	return c.JSON(fiber.Map{
		"success":     true,
		"lastCleared": doc.LastCleared,
		"version":     doc.Version,
	})
}

// stamp assigns author, server time and missing ids to posted elements.
func (h *WhiteboardHandler) stamp(c *fiber.Ctx, req WhiteboardPostRequest) ([]model.Element, error) {
	id, _ := auth.IdentityFrom(c)
	author := model.Author{UserID: id.UserID, UserName: id.UserName}
	now := h.now().UTC()

	var out []model.Element
	for _, s := range req.Strokes {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.StrokeID == "" {
			s.StrokeID = model.NewElementID(model.KindStroke, now)
		}
		s.Stamp(author, now)
		out = append(out, s)
	}
	for _, s := range req.Shapes {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.ShapeID == "" {
			s.ShapeID = model.NewElementID(model.KindShape, now)
		}
		s.Stamp(author, now)
		out = append(out, s)
	}
	for _, t := range req.Texts {
		if t.TextID == "" {
			t.TextID = model.NewElementID(model.KindText, now)
		}
		t.Stamp(author, now)
		out = append(out, t)
	}
	for _, n := range req.StickyNotes {
		if n.NoteID == "" {
			n.NoteID = model.NewElementID(model.KindStickyNote, now)
		}
		if n.Width == 0 {
			n.Width = model.DefaultStickyWidth
		}
		if n.Height == 0 {
			n.Height = model.DefaultStickyHeight
		}
		n.Stamp(author, now)
		out = append(out, n)
	}
	return out, nil
}

func (h *WhiteboardHandler) patch(c *fiber.Ctx, doc *model.Document, kinds ...model.ElementKind) store.Patch {
	p := store.PatchFor(doc, kinds...)
	p.MutationID = mutationID(c)
	return p
}

// storeError maps store failures to status codes without leaking storage details.
func (h *WhiteboardHandler) storeError(c *fiber.Ctx, op, projectID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whiteboard not found"})
	case errors.Is(err, store.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "whiteboard changed, retry"})
	}
	h.logger.Error("whiteboard store failure",
		zap.String("op", op),
		zap.String("projectId", projectID),
		zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// projectIDParam copies the value out of the request buffer; it outlives the request as a
// store, hub and presence key.
func projectIDParam(c *fiber.Ctx) string {
	return utils.CopyString(strings.TrimSpace(c.Query("projectId")))
}

// mutationID takes the caller's correlation id or makes one.
func mutationID(c *fiber.Ctx) string {
	if id := c.Get(MutationIDHeader); id != "" {
		return utils.CopyString(id)
	}
	return model.NewMutationID()
}

// parseTimestamp accepts RFC 3339 or unix milliseconds. Empty means unset.
func parseTimestamp(s string) (*time.Time, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, errInvalidTimestamp
	}
	return &t, nil
}
