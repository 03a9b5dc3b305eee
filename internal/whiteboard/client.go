// Package whiteboard mirrors one project's board locally and keeps it in sync with a
// DocumentStore: optimistic local edits, full-collection writes, and remote changes
// delivered through the store's subscription.
package whiteboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

var (
	ErrNotInitialized  = errors.New("whiteboard not initialized")
	ErrElementNotFound = errors.New("element not found")
	ErrSuperseded      = errors.New("whiteboard initialization superseded")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("whiteboard") }
}

// WithClock overrides the time source used for element timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithOnChange registers a listener that receives a copy of the local board after every
// visible change. Listeners run on the goroutine that caused the change and must not block.
func WithOnChange(fn func(model.Document)) Option {
	return func(c *Client) { c.onChange = append(c.onChange, fn) }
}

// WithOnStatus registers a connection status listener.
func WithOnStatus(fn func(Status)) Option {
	return func(c *Client) { c.onStatus = append(c.onStatus, fn) }
}

// WithCompareAndSwap makes every write conditional on the last known version. On conflict
// the board is re-read and the edit re-applied, up to retries times.
func WithCompareAndSwap(retries int) Option {
	return func(c *Client) {
		c.cas = true
		c.casRetries = retries
	}
}

type pendingWrite struct {
	id      string
	acked   bool
	version int64
	epoch   *time.Time
}

// Client 사용자 세션별 화이트보드 동기화 클라이언트 (Thread-Safe)
type Client struct {
	store  store.DocumentStore
	author model.Author
	logger *zap.Logger
	now    func() time.Time

	cas        bool
	casRetries int

	onChange []func(model.Document)
	onStatus []func(Status)

	// writeMu orders persistence in call order. Never held while waiting on mu for long.
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	status      Status
	projectID   string
	generation  uint64
	doc         model.Document
	unsubscribe func()
	pending     []*pendingWrite
	deferred    *model.Document
	stats       Stats
	// feedLost is set when the subscription broke; status stays disconnected until the
	// next InitWhiteboard.
	feedLost bool
}

// NewClient 새 동기화 클라이언트 생성
func NewClient(s store.DocumentStore, author model.Author, opts ...Option) *Client {
	c := &Client{
		store:  s,
		author: author,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  StateUninitialized,
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitWhiteboard tears down any previous subscription, loads (or lazily creates) the
// project's board and subscribes to its changes.
func (c *Client) InitWhiteboard(ctx context.Context, projectID string) error {
	c.mu.Lock()
	old := c.unsubscribe
	c.unsubscribe = nil
	if old != nil {
		c.state = StateDisposed
	}
	c.generation++
	gen := c.generation
	c.projectID = projectID
	c.doc = *model.NewDocument(projectID, time.Time{})
	c.pending = nil
	c.deferred = nil
	c.feedLost = false
	c.mu.Unlock()

	// 이전 프로젝트 구독을 완전히 해제한 뒤 새 구독을 연다
	if old != nil {
		old()
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state = StateInitializing
	snap := c.doc.Clone()
	c.mu.Unlock()
	c.emitChange(snap)

	doc, err := c.store.GetOrCreate(ctx, projectID)
	if err != nil {
		c.logger.Error("load whiteboard failed", zap.String("projectId", projectID), zap.Error(err))
		c.setStatus(gen, StatusDisconnected)
		return fmt.Errorf("load whiteboard: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.doc = doc.Clone()
	snap = c.doc.Clone()
	c.mu.Unlock()
	c.emitChange(snap)

	subCtx, cancel := context.WithCancel(context.Background())
	unsub, err := c.store.Subscribe(subCtx, projectID, func(ch store.Change) {
		c.handleChange(gen, ch)
	})
	if err != nil {
		cancel()
		c.logger.Error("subscribe failed", zap.String("projectId", projectID), zap.Error(err))
		c.setStatus(gen, StatusDisconnected)
		return fmt.Errorf("subscribe: %w", err)
	}
	stop := func() {
		unsub()
		cancel()
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		stop()
		return ErrSuperseded
	}
	c.unsubscribe = stop
	c.state = StateLive
	c.mu.Unlock()
	c.setStatus(gen, StatusConnected)

	// getOrCreate와 구독 사이에 놓친 변경 반영
	if fresh, err := c.store.Get(ctx, projectID); err == nil && fresh != nil {
		c.handleChange(gen, store.Change{ProjectID: projectID, Document: *fresh})
	}

	c.logger.Debug("whiteboard live", zap.String("projectId", projectID), zap.Int64("version", doc.Version))
	return nil
}

// Dispose unsubscribes from the current project.
func (c *Client) Dispose() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.generation++
	c.state = StateDisposed
	c.pending = nil
	c.deferred = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// AddStroke stamps a new id, author and createdAt, then appends the stroke.
func (c *Client) AddStroke(ctx context.Context, s model.Stroke) (model.Stroke, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}
	now := c.now()
	s.StrokeID = model.NewElementID(model.KindStroke, now)
	s.Stamp(c.author, now)
	return s, c.mutate(ctx, model.KindStroke, func(d *model.Document) error { return d.Append(s) })
}

// AddShape appends a new shape.
func (c *Client) AddShape(ctx context.Context, s model.Shape) (model.Shape, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}
	now := c.now()
	s.ShapeID = model.NewElementID(model.KindShape, now)
	s.Stamp(c.author, now)
	return s, c.mutate(ctx, model.KindShape, func(d *model.Document) error { return d.Append(s) })
}

// AddText appends a new text element.
func (c *Client) AddText(ctx context.Context, t model.TextElement) (model.TextElement, error) {
	now := c.now()
	t.TextID = model.NewElementID(model.KindText, now)
	t.Stamp(c.author, now)
	return t, c.mutate(ctx, model.KindText, func(d *model.Document) error { return d.Append(t) })
}

// AddStickyNote appends a new sticky note.
func (c *Client) AddStickyNote(ctx context.Context, n model.StickyNote) (model.StickyNote, error) {
	now := c.now()
	n.NoteID = model.NewElementID(model.KindStickyNote, now)
	n.Stamp(c.author, now)
	return n, c.mutate(ctx, model.KindStickyNote, func(d *model.Document) error { return d.Append(n) })
}

// UpdateStickyNote edits a note in place and persists the whole notes collection.
func (c *Client) UpdateStickyNote(ctx context.Context, id string, f model.NoteFields) error {
	return c.mutate(ctx, model.KindStickyNote, func(d *model.Document) error {
		if !d.UpdateStickyNote(id, f) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, id)
		}
		return nil
	})
}

// UpdateShape edits a shape in place.
func (c *Client) UpdateShape(ctx context.Context, id string, f model.ShapeFields) error {
	return c.mutate(ctx, model.KindShape, func(d *model.Document) error {
		if !d.UpdateShape(id, f) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, id)
		}
		return nil
	})
}

// UpdateText edits a text element in place.
func (c *Client) UpdateText(ctx context.Context, id string, f model.TextFields) error {
	return c.mutate(ctx, model.KindText, func(d *model.Document) error {
		if !d.UpdateText(id, f) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, id)
		}
		return nil
	})
}

// DeleteElement removes an element by id. Deleting an element that is already gone is a no-op.
func (c *Client) DeleteElement(ctx context.Context, kind model.ElementKind, id string) error {
	if kind.Field() == "" {
		return fmt.Errorf("%w: %d", model.ErrInvalidElementType, kind)
	}
	c.mu.Lock()
	live := c.state == StateLive
	_, ok := c.doc.Find(kind, id)
	c.mu.Unlock()
	if !live {
		return ErrNotInitialized
	}
	if !ok {
		return nil
	}
	return c.mutate(ctx, kind, func(d *model.Document) error {
		found, err := d.Remove(kind, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrElementNotFound, id)
		}
		return nil
	})
}

// ClearBoard empties the board and starts a new clear epoch.
func (c *Client) ClearBoard(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	gen, pid := c.generation, c.projectID
	mid := model.NewMutationID()
	c.doc.Reset(c.now())
	c.trackLocked(mid)
	snap := c.doc.Clone()
	c.mu.Unlock()
	c.emitChange(snap)
	c.setStatus(gen, StatusSyncing)

	doc, err := c.store.Clear(ctx, pid, mid)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.untrackLocked(mid)
		c.stats.FailedWrites++
		c.mu.Unlock()
		c.logger.Error("clear failed", zap.String("projectId", pid), zap.Error(err))
		c.setStatus(gen, StatusDisconnected)
		return fmt.Errorf("clear whiteboard: %w", err)
	}
	c.stats.Writes++
	// 서버 시각의 lastCleared로 교체
	if c.findPendingLocked(mid) != nil {
		c.ackLocked(mid, doc)
		next := doc.Clone()
		if c.deferred != nil && c.deferred.NewerThan(&next) {
			next = c.deferred.Clone()
		}
		c.deferred = nil
		c.doc = next
	} else if doc.NewerThan(&c.doc) {
		c.doc = doc.Clone()
	}
	snap = c.doc.Clone()
	idle := len(c.inFlightLocked()) == 0
	c.mu.Unlock()
	c.emitChange(snap)
	if idle {
		c.setStatus(gen, StatusConnected)
	}
	return nil
}

// ApplyDelta merges a polled REST delta into the local board.
func (c *Client) ApplyDelta(d model.Delta) error {
	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	d.Apply(&c.doc, false)
	snap := c.doc.Clone()
	c.mu.Unlock()
	c.emitChange(snap)
	return nil
}

// Snapshot returns a deep copy of the local board.
func (c *Client) Snapshot() model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

// State 현재 상태 조회
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status 연결 상태 조회
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ProjectID returns the active project.
func (c *Client) ProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

// Author returns the identity stamped on new elements.
func (c *Client) Author() model.Author {
	return c.author
}

// Stats 통계 조회
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// mutate applies an edit locally, then persists the full collection of kind.
func (c *Client) mutate(ctx context.Context, kind model.ElementKind, apply func(*model.Document) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if err := apply(&c.doc); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, pid := c.generation, c.projectID
	mid := model.NewMutationID()
	patch := c.patchLocked(kind, mid)
	c.trackLocked(mid)
	snap := c.doc.Clone()
	c.mu.Unlock()
	c.emitChange(snap)
	c.setStatus(gen, StatusSyncing)

	doc, err := c.store.Update(ctx, pid, patch)
	for attempt := 0; c.cas && errors.Is(err, store.ErrVersionConflict) && attempt < c.casRetries; attempt++ {
		c.mu.Lock()
		c.stats.Conflicts++
		c.mu.Unlock()

		var fresh *model.Document
		fresh, err = c.store.Get(ctx, pid)
		if err != nil {
			break
		}
		if fresh == nil {
			err = store.ErrNotFound
			break
		}

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return ErrSuperseded
		}
		next := fresh.Clone()
		if aerr := apply(&next); aerr != nil {
			c.doc = fresh.Clone()
			snap = c.doc.Clone()
			c.untrackLocked(mid)
			c.mu.Unlock()
			c.emitChange(snap)
			c.setStatus(gen, StatusConnected)
			return aerr
		}
		c.doc = next
		patch = c.patchLocked(kind, mid)
		snap = c.doc.Clone()
		c.mu.Unlock()
		c.emitChange(snap)

		doc, err = c.store.Update(ctx, pid, patch)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return err
	}
	if err != nil {
		// 로컬 낙관적 상태는 유지 (no rollback)
		c.untrackLocked(mid)
		c.stats.FailedWrites++
		c.mu.Unlock()
		c.logger.Error("persist failed",
			zap.String("projectId", pid),
			zap.String("field", kind.Field()),
			zap.Error(err))
		c.setStatus(gen, StatusDisconnected)
		return fmt.Errorf("persist %s: %w", kind.Field(), err)
	}

	c.stats.Writes++
	var changed *model.Document
	if c.findPendingLocked(mid) != nil {
		base := c.doc.Version
		c.ackLocked(mid, doc)
		next := *doc
		if c.deferred != nil && c.deferred.NewerThan(&next) {
			next = *c.deferred
		}
		c.deferred = nil
		if next.NewerThan(&c.doc) {
			silent := next.Version == base+1 && model.SameInstant(next.LastCleared, c.doc.LastCleared) && next.LastMutationID == mid
			c.doc = next.Clone()
			if !silent {
				s := c.doc.Clone()
				changed = &s
			}
		}
	}
	idle := len(c.inFlightLocked()) == 0
	c.mu.Unlock()

	if changed != nil {
		c.emitChange(*changed)
	}
	if idle {
		c.setStatus(gen, StatusConnected)
	}
	return nil
}

func (c *Client) patchLocked(kind model.ElementKind, mid string) store.Patch {
	p := store.PatchFor(&c.doc, kind)
	p.MutationID = mid
	if c.cas {
		v := c.doc.Version
		p.IfVersion = &v
	}
	return p
}

// handleChange applies a store notification. Notifications for our own writes are absorbed
// without a visible change; remote ones arriving while a write is in flight are deferred.
func (c *Client) handleChange(gen uint64, ch store.Change) {
	c.mu.Lock()
	if c.generation != gen || c.projectID != ch.ProjectID {
		c.mu.Unlock()
		return
	}
	if ch.Err != nil {
		c.feedLost = true
		c.mu.Unlock()
		c.logger.Warn("whiteboard subscription lost", zap.String("projectId", ch.ProjectID), zap.Error(ch.Err))
		c.setStatus(gen, StatusDisconnected)
		return
	}

	incoming := ch.Document
	incoming.Normalize()

	own := false
	if ch.MutationID != "" && c.untrackLocked(ch.MutationID) {
		own = true
	}
	c.pruneAckedLocked(&incoming)

	if len(c.inFlightLocked()) > 0 {
		if c.deferred == nil || incoming.NewerThan(c.deferred) {
			d := incoming.Clone()
			c.deferred = &d
		}
		c.mu.Unlock()
		return
	}

	if c.deferred != nil && c.deferred.NewerThan(&incoming) {
		incoming = *c.deferred
		own = false
	}
	c.deferred = nil

	forced := own && ch.Cleared
	if !forced && !incoming.NewerThan(&c.doc) {
		if own {
			c.stats.SuppressedEchos++
		}
		c.mu.Unlock()
		return
	}

	silent := own && (forced || incoming.Version == c.doc.Version+1) && model.SameInstant(incoming.LastCleared, c.doc.LastCleared)
	if own && forced {
		silent = c.doc.Empty()
	}
	c.doc = incoming.Clone()
	snap := c.doc.Clone()
	if silent {
		c.stats.SuppressedEchos++
	} else {
		c.stats.RemoteChanges++
	}
	c.mu.Unlock()

	if !silent {
		c.emitChange(snap)
	}
}

func (c *Client) trackLocked(mid string) {
	c.pending = append(c.pending, &pendingWrite{id: mid})
}

// untrackLocked removes a pending write. Reports whether it was present.
func (c *Client) untrackLocked(mid string) bool {
	for i, p := range c.pending {
		if p.id == mid {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Client) findPendingLocked(mid string) *pendingWrite {
	for _, p := range c.pending {
		if p.id == mid {
			return p
		}
	}
	return nil
}

func (c *Client) ackLocked(mid string, doc *model.Document) {
	if p := c.findPendingLocked(mid); p != nil {
		p.acked = true
		p.version = doc.Version
		p.epoch = doc.LastCleared
	}
}

// pruneAckedLocked drops acknowledged writes whose echo is covered by incoming.
func (c *Client) pruneAckedLocked(incoming *model.Document) {
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.acked && (!model.SameInstant(p.epoch, incoming.LastCleared) || p.version <= incoming.Version) {
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
}

func (c *Client) inFlightLocked() []*pendingWrite {
	var out []*pendingWrite
	for _, p := range c.pending {
		if !p.acked {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) setStatus(gen uint64, s Status) {
	c.mu.Lock()
	if s == StatusConnected && c.feedLost {
		s = StatusDisconnected
	}
	if c.generation != gen || c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	for _, fn := range c.onStatus {
		fn(s)
	}
}

func (c *Client) emitChange(doc model.Document) {
	for _, fn := range c.onChange {
		fn(doc)
	}
}
