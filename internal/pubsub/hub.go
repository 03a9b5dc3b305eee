package pubsub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed the bus stopped delivering messages.
var ErrClosed = errors.New("pubsub: bus closed")

// Handler receives one published payload.
type Handler func(payload []byte)

// Bus 토픽 기반 변경 알림 전달
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) (cancel func())
}

// Lifetime is implemented by buses that can stop delivering on their own. Done is closed
// once no more messages will arrive and Err then says why.
type Lifetime interface {
	Done() <-chan struct{}
	Err() error
}

// Hub in-process bus. Delivery is synchronous and in publish order.
// Handlers must not publish to the same hub from inside a delivery.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]Handler
	nextID uint64
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[uint64]Handler)}
}

// Publish 토픽 구독자들에게 전달
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	subs := make([]Handler, 0, len(h.topics[topic]))
	for _, fn := range h.topics[topic] {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(payload)
	}
	return nil
}

// Subscribe registers h for topic. The returned cancel func is idempotent.
func (h *Hub) Subscribe(topic string, fn Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]Handler)
	}
	h.topics[topic][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.topics[topic], id)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
		})
	}
}

// Subscribers returns the number of handlers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
