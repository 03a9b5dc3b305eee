package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/store"
)

func TestOpenMemory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: config.BackendMemory}}
	b, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.Store)
	assert.Nil(t, b.Firebase)
}

func TestOpenSQLiteWithRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Store:    config.StoreConfig{Backend: config.BackendSQLite},
		Database: config.DatabaseConfig{Driver: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "wb.db")},
		Redis:    config.RedisConfig{Addr: mr.Addr(), ChannelPrefix: "test:"},
	}
	b, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.IsType(t, &store.GormStore{}, b.Store)
	require.NotNil(t, b.DB)
	require.NotNil(t, b.Redis)

	doc, err := b.Store.GetOrCreate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.Version)

	assert.NoError(t, b.Close())
}

func TestOpenFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{
		Store: config.StoreConfig{Backend: config.BackendMemory},
		Redis: config.RedisConfig{Addr: addr},
	}
	_, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestConnectGormRejectsUnknownDriver(t *testing.T) {
	_, err := ConnectGorm(config.DatabaseConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
