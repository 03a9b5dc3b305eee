package presence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager Redis 기반 Tracker. 인스턴스 간 공유된다.
//
// Each project is one hash keyed by connection id. The hash TTL is refreshed on every write,
// and entries whose heartbeat is older than the TTL are pruned on read.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewManager 생성자
func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{client: client, ttl: ttl, now: time.Now}
}

// Key 생성 유틸
func (m *Manager) roomKey(projectID string) string {
	return "presence:whiteboard:" + projectID
}

// Join 연결 등록 (Connect)
func (m *Manager) Join(ctx context.Context, projectID string, v Viewer) error {
	now := m.now()
	if v.JoinedAt.IsZero() {
		v.JoinedAt = now
	}
	v.LastHeartbeat = now.Unix()
	return m.write(ctx, projectID, v)
}

// Heartbeat 생존 신고
func (m *Manager) Heartbeat(ctx context.Context, projectID, connID string) error {
	val, err := m.client.HGet(ctx, m.roomKey(projectID), connID).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotPresent
	}
	if err != nil {
		return err
	}

	var v Viewer
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		return err
	}
	if expired(v, m.now(), m.ttl) {
		return ErrNotPresent
	}
	v.LastHeartbeat = m.now().Unix()
	return m.write(ctx, projectID, v)
}

// Leave 연결 해제 (Disconnect)
func (m *Manager) Leave(ctx context.Context, projectID, connID string) error {
	return m.client.HDel(ctx, m.roomKey(projectID), connID).Err()
}

// Viewers 보드 접속자 조회
func (m *Manager) Viewers(ctx context.Context, projectID string) ([]Viewer, error) {
	key := m.roomKey(projectID)
	all, err := m.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Viewer, 0, len(all))
	var stale []string
	for connID, raw := range all {
		var v Viewer
		if err := json.Unmarshal([]byte(raw), &v); err != nil || expired(v, now, m.ttl) {
			stale = append(stale, connID)
			continue
		}
		out = append(out, v)
	}
	if len(stale) > 0 {
		m.client.HDel(ctx, key, stale...)
	}

	sortViewers(out)
	return out, nil
}

func (m *Manager) write(ctx context.Context, projectID string, v Viewer) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := m.roomKey(projectID)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, v.ConnID, data)
	pipe.Expire(ctx, key, m.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
