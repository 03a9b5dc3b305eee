package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func trackers(t *testing.T, clk *clock) map[string]Tracker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mem := NewMemoryTracker(time.Minute)
	mem.now = clk.now
	rm := NewManager(client, time.Minute)
	rm.now = clk.now
	return map[string]Tracker{"memory": mem, "redis": rm}
}

func TestTrackerLifecycle(t *testing.T) {
	clk := &clock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	for name, tr := range trackers(t, clk) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tr.Join(ctx, "p1", Viewer{ConnID: "c1", UserID: "u1", UserName: "Ann"}))
			clk.t = clk.t.Add(time.Second)
			require.NoError(t, tr.Join(ctx, "p1", Viewer{ConnID: "c2", UserID: "u2", UserName: "Bo"}))
			require.NoError(t, tr.Join(ctx, "p2", Viewer{ConnID: "c3", UserID: "u3"}))

			vs, err := tr.Viewers(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, vs, 2)
			assert.Equal(t, "c1", vs[0].ConnID)
			assert.Equal(t, "Bo", vs[1].UserName)

			require.NoError(t, tr.Leave(ctx, "p1", "c1"))
			vs, err = tr.Viewers(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, vs, 1)
			assert.Equal(t, "c2", vs[0].ConnID)
		})
	}
}

func TestTrackerExpiresWithoutHeartbeat(t *testing.T) {
	clk := &clock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	for name, tr := range trackers(t, clk) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tr.Join(ctx, "p1", Viewer{ConnID: "alive"}))
			require.NoError(t, tr.Join(ctx, "p1", Viewer{ConnID: "gone"}))

			clk.t = clk.t.Add(50 * time.Second)
			require.NoError(t, tr.Heartbeat(ctx, "p1", "alive"))

			clk.t = clk.t.Add(20 * time.Second)
			vs, err := tr.Viewers(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, vs, 1)
			assert.Equal(t, "alive", vs[0].ConnID)

			assert.ErrorIs(t, tr.Heartbeat(ctx, "p1", "gone"), ErrNotPresent)
			assert.ErrorIs(t, tr.Heartbeat(ctx, "p1", "never"), ErrNotPresent)
		})
	}
}
