package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/store"
)

// WebSocket 메시지 타입
const (
	WSTypeSnapshot = "snapshot"
	WSTypeChange   = "change"
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeError    = "error"
)

// WhiteboardWSMessage 화이트보드 WebSocket 메시지
type WhiteboardWSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ChangePayload change 메시지 페이로드
type ChangePayload struct {
	Document   model.Document `json:"document"`
	MutationID string         `json:"mutationId,omitempty"`
	Cleared    bool           `json:"cleared,omitempty"`
}

// WhiteboardWSHandler 화이트보드 실시간 구독 핸들러
//
// Each connection gets a snapshot and one change message per store notification. Clients
// keep whichever is newer by clear epoch and version. Every change carries the full
// document, so when a slow client's queue is full the oldest queued message is dropped.
type WhiteboardWSHandler struct {
	store    store.DocumentStore
	presence presence.Tracker
	cfg      config.WebSocketConfig
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]int // projectID -> connections
}

// NewWhiteboardWSHandler WhiteboardWSHandler 생성. A nil tracker keeps presence in memory.
func NewWhiteboardWSHandler(s store.DocumentStore, tracker presence.Tracker, cfg config.WebSocketConfig, logger *zap.Logger) *WhiteboardWSHandler {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 32
	}
	if tracker == nil {
		tracker = presence.NewMemoryTracker(presence.DefaultTTL)
	}
	return &WhiteboardWSHandler{
		store:    s,
		presence: tracker,
		cfg:      cfg,
		logger:   logger.Named("whiteboard_ws"),
		clients:  make(map[string]int),
	}
}

// Upgrade checks the upgrade request and stores the project id. Auth runs before it.
func (h *WhiteboardWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}
	c.Locals("projectId", projectID)
	return c.Next()
}

// HandleWebSocket WebSocket 연결 처리
func (h *WhiteboardWSHandler) HandleWebSocket(c *websocket.Conn) {
	// 패닉 복구 - 서버 크래시 방지
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("whiteboard websocket panic", zap.Any("panic", r))
		}
	}()

	projectID, ok := c.Locals("projectId").(string)
	identity, idOK := c.Locals("identity").(auth.Identity)
	if !ok || !idOK {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":"invalid session"}`))
		_ = c.Close()
		return
	}
	log := h.logger.With(zap.String("projectId", projectID), zap.String("userId", identity.UserID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan []byte, h.cfg.SendBufferSize)
	enqueue := func(msg WhiteboardWSMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Error("encode websocket message", zap.Error(err))
			return
		}
		select {
		case send <- data:
			return
		default:
		}
		// 가장 오래된 메시지를 버리고 최신 상태를 넣는다
		select {
		case <-send:
		default:
		}
		select {
		case send <- data:
		default:
		}
		log.Warn("websocket send queue full, dropped oldest message")
	}

	// lost 구독이 끊기면 남은 메시지를 보내고 연결을 닫는다. 클라이언트는 재접속한다.
	lost := make(chan struct{})
	var lostOnce sync.Once
	unsubscribe, err := h.store.Subscribe(ctx, projectID, func(ch store.Change) {
		if ch.Err != nil {
			log.Warn("whiteboard feed lost", zap.Error(ch.Err))
			enqueue(WhiteboardWSMessage{Type: WSTypeError, Payload: "live updates unavailable"})
			lostOnce.Do(func() { close(lost) })
			return
		}
		enqueue(WhiteboardWSMessage{Type: WSTypeChange, Payload: ChangePayload{
			Document:   ch.Document,
			MutationID: ch.MutationID,
			Cleared:    ch.Cleared,
		}})
	})
	if err != nil {
		log.Error("subscribe for websocket", zap.Error(err))
		_ = c.Close()
		return
	}

	// 구독 후 스냅샷을 읽어 그 사이 변경을 놓치지 않는다
	doc, err := h.store.GetOrCreate(ctx, projectID)
	if err != nil {
		unsubscribe()
		log.Error("load whiteboard for websocket", zap.Error(err))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":"internal server error"}`))
		_ = c.Close()
		return
	}
	enqueue(WhiteboardWSMessage{Type: WSTypeSnapshot, Payload: doc})

	connID := uuid.NewString()
	if err := h.presence.Join(ctx, projectID, presence.Viewer{
		ConnID:   connID,
		UserID:   identity.UserID,
		UserName: identity.UserName,
	}); err != nil {
		log.Warn("presence join failed", zap.Error(err))
	}
	h.register(projectID, 1)
	log.Info("whiteboard websocket connected", zap.String("connId", connID))

	// 연결 해제 시 정리
	done := make(chan struct{})
	defer func() {
		unsubscribe()
		close(done)
		h.register(projectID, -1)
		if err := h.presence.Leave(context.Background(), projectID, connID); err != nil {
			log.Warn("presence leave failed", zap.Error(err))
		}
		cancel()
		_ = c.Close()
		log.Info("whiteboard websocket disconnected", zap.String("connId", connID))
	}()

	heartbeat := func() {
		err := h.presence.Heartbeat(ctx, projectID, connID)
		if errors.Is(err, presence.ErrNotPresent) {
			err = h.presence.Join(ctx, projectID, presence.Viewer{ConnID: connID, UserID: identity.UserID, UserName: identity.UserName})
		}
		if err != nil {
			log.Debug("presence heartbeat failed", zap.Error(err))
		}
	}
	go h.writeLoop(c, send, done, lost, heartbeat, log)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var msg WhiteboardWSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}

		// ping 메시지에 pong 응답
		if msg.Type == WSTypePing {
			enqueue(WhiteboardWSMessage{Type: WSTypePong})
		}
	}
}

func (h *WhiteboardWSHandler) writeLoop(c *websocket.Conn, send <-chan []byte, done, lost <-chan struct{}, heartbeat func(), log *zap.Logger) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case data := <-send:
			h.setWriteDeadline(c)
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-lost:
			for {
				select {
				case data := <-send:
					h.setWriteDeadline(c)
					if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
						_ = c.Close()
						return
					}
				default:
					_ = c.Close()
					return
				}
			}
		case <-ping:
			h.setWriteDeadline(c)
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
			heartbeat()
		}
	}
}

func (h *WhiteboardWSHandler) setWriteDeadline(c *websocket.Conn) {
	if h.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
}

func (h *WhiteboardWSHandler) register(projectID string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[projectID] += delta
	if h.clients[projectID] <= 0 {
		delete(h.clients, projectID)
	}
}

// Connections 프로젝트별 연결 수
func (h *WhiteboardWSHandler) Connections(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[projectID]
}

// Viewers 보드 접속자 목록
func (h *WhiteboardWSHandler) Viewers(c *fiber.Ctx) error {
	projectID := projectIDParam(c)
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	viewers, err := h.presence.Viewers(c.UserContext(), projectID)
	if err != nil {
		h.logger.Error("presence lookup failed", zap.String("projectId", projectID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	users := make(map[string]bool, len(viewers))
	for _, v := range viewers {
		users[v.UserID] = true
	}
	return c.JSON(fiber.Map{
		"viewers": viewers,
		"users":   len(users),
	})
}
