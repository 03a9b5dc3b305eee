package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/pubsub"
)

func redisBus(t *testing.T) *pubsub.RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := pubsub.NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	bus, err := pubsub.NewRedisBus(ctx, client, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	return bus
}

func TestSubscriptionEndsWhenBusStops(t *testing.T) {
	bus := redisBus(t)
	s := NewMemoryStore(bus, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, "p1")
	require.NoError(t, err)

	changes := make(chan Change, 8)
	unsubscribe, err := s.Subscribe(ctx, "p1", func(c Change) { changes <- c })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = s.Update(ctx, "p1", Patch{Strokes: &[]model.Stroke{newStroke(time.Now())}, MutationID: "m-1"})
	require.NoError(t, err)
	c := waitForChange(t, changes, func(c Change) bool { return c.MutationID == "m-1" })
	assert.NoError(t, c.Err)

	require.NoError(t, bus.Close())
	c = waitForChange(t, changes, func(c Change) bool { return c.Err != nil })
	assert.ErrorIs(t, c.Err, ErrSubscriptionLost)
	assert.ErrorIs(t, c.Err, pubsub.ErrClosed)
	assert.Equal(t, "p1", c.ProjectID)
}

func TestUnsubscribedListenerIsNotToldAboutBusStop(t *testing.T) {
	bus := redisBus(t)
	s := NewMemoryStore(bus, zaptest.NewLogger(t))

	changes := make(chan Change, 8)
	unsubscribe, err := s.Subscribe(context.Background(), "p1", func(c Change) { changes <- c })
	require.NoError(t, err)
	unsubscribe()

	require.NoError(t, bus.Close())
	select {
	case c := <-changes:
		t.Fatalf("unexpected change after unsubscribe: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}
