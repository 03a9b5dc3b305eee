package pubsub

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannelPrefix Redis 채널 접두사
const DefaultChannelPrefix = "whiteboard:"

// NewRedisClient Redis 연결 후 Ping 확인
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// RedisBus fans messages out across server instances. Every instance pattern-subscribes
// to prefix* once and relays inbound messages into a local Hub.
type RedisBus struct {
	client *redis.Client
	prefix string
	local  *Hub
	ps     *redis.PubSub
	logger *zap.Logger
	done   chan struct{}
}

// NewRedisBus 구독이 확인된 뒤에 반환된다 (no message published afterwards is missed).
func NewRedisBus(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger) (*RedisBus, error) {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	ps := client.PSubscribe(ctx, prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	b := &RedisBus{
		client: client,
		prefix: prefix,
		local:  NewHub(),
		ps:     ps,
		logger: logger.Named("redis-bus"),
		done:   make(chan struct{}),
	}
	go b.relay()

	b.logger.Info("subscribed", zap.String("pattern", prefix+"*"))
	return b, nil
}

func (b *RedisBus) relay() {
	defer close(b.done)
	for msg := range b.ps.Channel() {
		topic := strings.TrimPrefix(msg.Channel, b.prefix)
		if err := b.local.Publish(context.Background(), topic, []byte(msg.Payload)); err != nil {
			b.logger.Warn("relay failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	b.logger.Warn("relay stopped", zap.String("pattern", b.prefix+"*"))
}

// Done is closed when the relay stops. Local subscribers receive nothing after that.
func (b *RedisBus) Done() <-chan struct{} {
	return b.done
}

// Err returns ErrClosed once Done is closed, nil before.
func (b *RedisBus) Err() error {
	select {
	case <-b.done:
		return ErrClosed
	default:
		return nil
	}
}

// Publish 모든 인스턴스에 메시지 발행
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, b.prefix+topic, payload).Err()
}

// Subscribe registers a local handler for messages relayed from Redis.
func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	return b.local.Subscribe(topic, h)
}

// Close stops the relay. The Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	err := b.ps.Close()
	<-b.done
	return err
}
