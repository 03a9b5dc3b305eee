package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
)

// Event is a board state pushed by the server.
type Event struct {
	Type       string
	Document   model.Document
	MutationID string
	Cleared    bool
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type changePayload struct {
	Document   model.Document `json:"document"`
	MutationID string         `json:"mutationId"`
	Cleared    bool           `json:"cleared"`
}

const (
	minRetry = time.Second
	maxRetry = 30 * time.Second
)

// Watch streams board states for projectID to fn until ctx ends, reconnecting on failure.
// Only states newer than the last delivered one reach fn, so replays after a reconnect are
// dropped. A rejected token stops the watch with ErrUnauthorized.
func (c *Client) Watch(ctx context.Context, projectID string, fn func(Event)) error {
	var latest *model.Document
	deliver := func(ev Event) {
		if latest != nil && !ev.Document.NewerThan(latest) {
			return
		}
		doc := ev.Document
		latest = &doc
		fn(ev)
	}

	retry := minRetry
	for {
		connected, err := c.watchOnce(ctx, projectID, deliver)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBadRequest) {
			return err
		}
		if connected {
			retry = minRetry
		}
		c.logger.Warn("watch disconnected, retrying",
			zap.String("projectId", projectID),
			zap.Duration("retry", retry),
			zap.Error(err))

		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		retry = min(retry*2, maxRetry)
	}
}

// watchOnce runs one connection and reports whether the handshake succeeded.
func (c *Client) watchOnce(ctx context.Context, projectID string, deliver func(Event)) (bool, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.timeout,
		NetDialContext:   c.dial,
	}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL(projectID), nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return false, ErrUnauthorized
			case http.StatusBadRequest:
				return false, ErrBadRequest
			}
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	c.logger.Info("watching board", zap.String("projectId", projectID))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		ev, ok, err := decodeEvent(data)
		if err != nil {
			return true, err
		}
		if ok {
			deliver(ev)
		}
	}
}

func decodeEvent(data []byte) (Event, bool, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false, nil
	}

	switch msg.Type {
	case "snapshot":
		var doc model.Document
		if err := json.Unmarshal(msg.Payload, &doc); err != nil {
			return Event{}, false, nil
		}
		return Event{Type: msg.Type, Document: doc}, true, nil
	case "change":
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return Event{}, false, nil
		}
		return Event{Type: msg.Type, Document: p.Document, MutationID: p.MutationID, Cleared: p.Cleared}, true, nil
	case "error":
		var text string
		_ = json.Unmarshal(msg.Payload, &text)
		return Event{}, false, fmt.Errorf("server error: %s", text)
	}
	return Event{}, false, nil
}

func (c *Client) wsURL(projectID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws/whiteboard"
	u.RawQuery = url.Values{"projectId": {projectID}, "token": {c.token}}.Encode()
	return u.String()
}
