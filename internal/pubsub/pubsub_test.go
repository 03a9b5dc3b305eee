package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub()
	var got []string
	cancel := h.Subscribe("p1", func(b []byte) { got = append(got, string(b)) })
	h.Subscribe("p2", func(b []byte) { t.Fatalf("cross-topic delivery: %s", b) })

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, h.Publish(context.Background(), "p1", []byte(m)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	cancel()
	cancel()
	require.NoError(t, h.Publish(context.Background(), "p1", []byte("d")))
	assert.Len(t, got, 3)
	assert.Equal(t, 0, h.Subscribers("p1"))
}

func TestRedisBusRelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	c1, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer c2.Close()

	a, err := NewRedisBus(ctx, c1, "", logger)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisBus(ctx, c2, "", logger)
	require.NoError(t, err)
	defer b.Close()

	received := make(chan string, 1)
	b.Subscribe("project-1", func(p []byte) { received <- string(p) })

	require.NoError(t, a.Publish(ctx, "project-1", []byte(`{"version":1}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"version":1}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not relayed")
	}
}

func TestNewRedisClientFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestRedisBusReportsStop(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	b, err := NewRedisBus(ctx, client, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	var lt Lifetime = b
	assert.NoError(t, lt.Err())
	select {
	case <-lt.Done():
		t.Fatal("done before close")
	default:
	}

	require.NoError(t, b.Close())
	select {
	case <-lt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done not closed")
	}
	assert.ErrorIs(t, lt.Err(), ErrClosed)
}
