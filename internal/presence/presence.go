// Package presence tracks who is currently viewing a board.
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultTTL 하트비트가 없으면 이 시간 뒤 오프라인 처리
const DefaultTTL = 60 * time.Second

// ErrNotPresent is returned by Heartbeat for a connection that expired or never joined.
var ErrNotPresent = errors.New("viewer not present")

// Viewer 보드에 연결된 사용자 (연결 단위)
type Viewer struct {
	ConnID        string    `json:"connId"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	ServerID      string    `json:"serverId,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastHeartbeat int64     `json:"lastHeartbeat"`
}

// Tracker records live connections per project.
type Tracker interface {
	Join(ctx context.Context, projectID string, v Viewer) error
	Heartbeat(ctx context.Context, projectID, connID string) error
	Leave(ctx context.Context, projectID, connID string) error
	// Viewers lists unexpired connections, oldest first.
	Viewers(ctx context.Context, projectID string) ([]Viewer, error)
}

// MemoryTracker 단일 인스턴스용 Tracker
type MemoryTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	rooms map[string]map[string]Viewer
}

// NewMemoryTracker ttl<=0이면 DefaultTTL
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:   ttl,
		now:   time.Now,
		rooms: make(map[string]map[string]Viewer),
	}
}

func (m *MemoryTracker) Join(_ context.Context, projectID string, v Viewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if v.JoinedAt.IsZero() {
		v.JoinedAt = now
	}
	v.LastHeartbeat = now.Unix()

	room, ok := m.rooms[projectID]
	if !ok {
		room = make(map[string]Viewer)
		m.rooms[projectID] = room
	}
	room[v.ConnID] = v
	return nil
}

func (m *MemoryTracker) Heartbeat(_ context.Context, projectID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.rooms[projectID][connID]
	if !ok || expired(v, m.now(), m.ttl) {
		return ErrNotPresent
	}
	v.LastHeartbeat = m.now().Unix()
	m.rooms[projectID][connID] = v
	return nil
}

func (m *MemoryTracker) Leave(_ context.Context, projectID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms[projectID], connID)
	if len(m.rooms[projectID]) == 0 {
		delete(m.rooms, projectID)
	}
	return nil
}

func (m *MemoryTracker) Viewers(_ context.Context, projectID string) ([]Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Viewer, 0, len(m.rooms[projectID]))
	for id, v := range m.rooms[projectID] {
		if expired(v, now, m.ttl) {
			delete(m.rooms[projectID], id)
			continue
		}
		out = append(out, v)
	}
	sortViewers(out)
	return out, nil
}

func expired(v Viewer, now time.Time, ttl time.Duration) bool {
	return now.Sub(time.Unix(v.LastHeartbeat, 0)) > ttl
}

func sortViewers(vs []Viewer) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].JoinedAt.Equal(vs[j].JoinedAt) {
			return vs[i].JoinedAt.Before(vs[j].JoinedAt)
		}
		return vs[i].ConnID < vs[j].ConnID
	})
}
