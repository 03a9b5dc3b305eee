package store

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"whiteboard-backend/internal/model"
)

// FirestoreCollection 화이트보드 컬렉션 이름 (document id = projectId)
const FirestoreCollection = "whiteboards"

// FirestoreStore keeps boards in Firestore and subscribes through native snapshot listeners,
// so it needs no bus.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
	opts   options
}

func NewFirestoreStore(client *firestore.Client, logger *zap.Logger, opts ...Option) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.Named("firestore-store"),
		opts:   newOptions(opts),
	}
}

func (s *FirestoreStore) ref(projectID string) *firestore.DocumentRef {
	return s.client.Collection(FirestoreCollection).Doc(projectID)
}

func (s *FirestoreStore) GetOrCreate(ctx context.Context, projectID string) (*model.Document, error) {
	ref := s.ref(projectID)
	var doc *model.Document
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			doc = model.NewDocument(projectID, s.opts.timestamp())
			return tx.Create(ref, doc)
		}
		if err != nil {
			return err
		}
		doc, err = decodeSnapshot(snap)
		return err
	})
	if err != nil {
		return nil, unavailable("getOrCreate", err)
	}
	return doc, nil
}

func (s *FirestoreStore) Get(ctx context.Context, projectID string) (*model.Document, error) {
	snap, err := s.ref(projectID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	doc, err := decodeSnapshot(snap)
	if err != nil {
		return nil, unavailable("get", err)
	}
	return doc, nil
}

// Update writes only the supplied fields plus an atomic version increment. The transaction
// read gives the resulting document without a second round trip.
func (s *FirestoreStore) Update(ctx context.Context, projectID string, p Patch) (*model.Document, error) {
	ref := s.ref(projectID)
	now := s.opts.timestamp()

	updates := []firestore.Update{
		{Path: "version", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now},
		{Path: "lastMutationId", Value: p.MutationID},
	}
	if p.Strokes != nil {
		updates = append(updates, firestore.Update{Path: "strokes", Value: nonNil(*p.Strokes)})
	}
	if p.Shapes != nil {
		updates = append(updates, firestore.Update{Path: "shapes", Value: nonNil(*p.Shapes)})
	}
	if p.Texts != nil {
		updates = append(updates, firestore.Update{Path: "texts", Value: nonNil(*p.Texts)})
	}
	if p.StickyNotes != nil {
		updates = append(updates, firestore.Update{Path: "stickyNotes", Value: nonNil(*p.StickyNotes)})
	}

	var result *model.Document
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decodeSnapshot(snap)
		if err != nil {
			return err
		}
		if err := checkVersion(doc, p); err != nil {
			return err
		}
		p.Apply(doc, now)
		result = doc
		return tx.Update(ref, updates)
	})
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return nil, err
	case err != nil:
		return nil, unavailable("update", err)
	}
	return result, nil
}

func (s *FirestoreStore) Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error) {
	ref := s.ref(projectID)
	now := s.opts.timestamp()

	var result *model.Document
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := model.NewDocument(projectID, now)
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if existing, derr := decodeSnapshot(snap); derr == nil {
				doc.CreatedAt = existing.CreatedAt
			}
		}
		doc.Reset(now)
		doc.LastMutationID = mutationID
		result = doc
		return tx.Set(ref, doc)
	})
	if err != nil {
		return nil, unavailable("clear", err)
	}
	return result, nil
}

// Subscribe listens to the board document. The first delivery is the current state.
func (s *FirestoreStore) Subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.ref(projectID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.logger.Warn("snapshot listener stopped", zap.String("projectId", projectID), zap.Error(err))
				fn(lost(projectID, err))
				return
			}
			if !snap.Exists() {
				continue
			}
			doc, err := decodeSnapshot(snap)
			if err != nil {
				s.logger.Warn("decode snapshot", zap.String("projectId", projectID), zap.Error(err))
				continue
			}
			fn(Change{
				ProjectID:  projectID,
				Document:   *doc,
				MutationID: doc.LastMutationID,
				Cleared:    doc.Version == 0 && doc.LastCleared != nil,
			})
		}
	}()
	return cancel, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(FirestoreCollection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*model.Document, error) {
	var doc model.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	doc.ProjectID = snap.Ref.ID
	doc.Normalize()
	return &doc, nil
}
