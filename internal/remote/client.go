// Package remote talks to a whiteboard server over REST and its live websocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
)

const mutationIDHeader = "X-Mutation-Id"

var (
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrNotFound     = errors.New("remote: not found")
	ErrBadRequest   = errors.New("remote: bad request")
	ErrConflict     = errors.New("remote: conflict")
)

// StatusError is returned for responses without a dedicated sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Code, e.Message)
}

// Elements is the body of an append request.
type Elements struct {
	Strokes     []model.Stroke      `json:"strokes,omitempty"`
	Shapes      []model.Shape       `json:"shapes,omitempty"`
	Texts       []model.TextElement `json:"texts,omitempty"`
	StickyNotes []model.StickyNote  `json:"stickyNotes,omitempty"`
}

// Result describes a completed write.
type Result struct {
	Version     int64      `json:"version"`
	LastCleared *time.Time `json:"lastCleared,omitempty"`
	MutationID  string     `json:"-"`
}

// Client REST 클라이언트
type Client struct {
	base    *url.URL
	token   string
	http    *fasthttp.Client
	timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds requests whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("remote") }
}

// WithDialer routes both REST and websocket connections through dial.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.dial = dial }
}

// NewClient builds a client for the server at baseURL, authenticating with token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base:    u,
		token:   token,
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = &fasthttp.Client{
		Name:                "whiteboard-remote",
		MaxConnsPerHost:     16,
		ReadTimeout:         c.timeout,
		WriteTimeout:        c.timeout,
		MaxIdleConnDuration: time.Minute,
	}
	if c.dial != nil {
		dial := c.dial
		c.http.Dial = func(addr string) (net.Conn, error) {
			return dial(context.Background(), "tcp", addr)
		}
	}
	return c, nil
}

// Fetch returns elements created after since, or the whole board when the server cleared it
// after lastCleared. Nil bounds fetch everything.
func (c *Client) Fetch(ctx context.Context, projectID string, since, lastCleared *time.Time) (model.Delta, error) {
	q := url.Values{"projectId": {projectID}}
	if since != nil {
		q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if lastCleared != nil {
		q.Set("lastCleared", lastCleared.UTC().Format(model.TimestampLayout))
	}

	var d model.Delta
	if err := c.do(ctx, fasthttp.MethodGet, q, nil, "", &d); err != nil {
		return model.Delta{}, err
	}
	return d, nil
}

// Append adds elements. Elements with an existing id replace it.
func (c *Client) Append(ctx context.Context, projectID string, els Elements) (Result, error) {
	return c.write(ctx, fasthttp.MethodPost, url.Values{"projectId": {projectID}}, els)
}

// UpdateElement merges updates into a shape, text or sticky note.
func (c *Client) UpdateElement(ctx context.Context, projectID string, kind model.ElementKind, id string, updates map[string]any) (Result, error) {
	body := map[string]any{
		"elementType": kind.String(),
		"elementId":   id,
		"updates":     updates,
	}
	return c.write(ctx, fasthttp.MethodPut, url.Values{"projectId": {projectID}}, body)
}

// DeleteElement removes one element. Deleting an absent element succeeds.
func (c *Client) DeleteElement(ctx context.Context, projectID string, kind model.ElementKind, id string) (Result, error) {
	q := url.Values{
		"projectId":   {projectID},
		"elementType": {kind.String()},
		"elementId":   {id},
	}
	return c.write(ctx, fasthttp.MethodDelete, q, nil)
}

// Clear empties the board and opens a new clear epoch.
func (c *Client) Clear(ctx context.Context, projectID string) (Result, error) {
	return c.write(ctx, fasthttp.MethodPost, url.Values{"projectId": {projectID}}, map[string]string{"action": "clear"})
}

func (c *Client) write(ctx context.Context, method string, q url.Values, body any) (Result, error) {
	mid := model.NewMutationID()
	var res Result
	if err := c.do(ctx, method, q, body, mid, &res); err != nil {
		return Result{}, err
	}
	res.MutationID = mid
	return res, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method string, q url.Values, body any, mutationID string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint("/api/whiteboard", q))
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if mutationID != "" {
		req.Header.Set(mutationIDHeader, mutationID)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, "/api/whiteboard", err)
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return statusError(code, resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	switch code {
	case fasthttp.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, payload.Error)
	case fasthttp.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, payload.Error)
	case fasthttp.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, payload.Error)
	case fasthttp.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, payload.Error)
	}
	return &StatusError{Code: code, Message: payload.Error}
}
