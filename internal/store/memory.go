package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/pubsub"
)

// MemoryStore in-process 저장소 (tests, single-node dev)
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document

	// pubMu keeps notifications in commit order without holding mu during delivery.
	pubMu sync.Mutex

	notifier
	opts options
}

func NewMemoryStore(bus pubsub.Bus, logger *zap.Logger, opts ...Option) *MemoryStore {
	if bus == nil {
		bus = pubsub.NewHub()
	}
	return &MemoryStore{
		docs:     make(map[string]*model.Document),
		notifier: notifier{bus: bus, logger: logger.Named("memory-store")},
		opts:     newOptions(opts),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, projectID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[projectID]
	if !ok {
		doc = model.NewDocument(projectID, s.opts.timestamp())
		s.docs[projectID] = doc
	}
	out := doc.Clone()
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, projectID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[projectID]
	if !ok {
		return nil, nil
	}
	out := doc.Clone()
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, projectID string, p Patch) (*model.Document, error) {
	s.mu.Lock()
	doc, ok := s.docs[projectID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := checkVersion(doc, p); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	p.Apply(doc, s.opts.timestamp())
	out := doc.Clone()

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.publish(ctx, &out, false)
	return &out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error) {
	now := s.opts.timestamp()

	s.mu.Lock()
	doc, ok := s.docs[projectID]
	if !ok {
		doc = model.NewDocument(projectID, now)
		s.docs[projectID] = doc
	}
	doc.Reset(now)
	doc.LastMutationID = mutationID
	out := doc.Clone()

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.publish(ctx, &out, true)
	return &out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error) {
	return s.subscribe(ctx, projectID, fn)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
