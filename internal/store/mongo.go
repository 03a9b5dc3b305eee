package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/pubsub"
)

// MongoCollection 화이트보드 컬렉션 이름 (_id = projectId)
const MongoCollection = "whiteboards"

// MongoStore provides board persistence on a MongoDB collection.
type MongoStore struct {
	db     *mongo.Database
	boards *mongo.Collection
	notifier
	opts options
}

// NewMongoStore creates a MongoStore and ensures required indexes exist.
func NewMongoStore(db *mongo.Database, bus pubsub.Bus, logger *zap.Logger, opts ...Option) *MongoStore {
	if bus == nil {
		bus = pubsub.NewHub()
	}
	s := &MongoStore{
		db:       db,
		boards:   db.Collection(MongoCollection),
		notifier: notifier{bus: bus, logger: logger.Named("mongo-store")},
		opts:     newOptions(opts),
	}
	s.ensureIndexes()
	return s
}

func (s *MongoStore) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// updatedAt for "recently active boards" queries from tooling.
	if _, err := s.boards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: -1}},
	}); err != nil {
		s.logger.Warn("create index", zap.Error(err))
	}
}

func (s *MongoStore) GetOrCreate(ctx context.Context, projectID string) (*model.Document, error) {
	fresh := model.NewDocument(projectID, s.opts.timestamp())
	update := bson.M{"$setOnInsert": bson.M{
		"strokes":     fresh.Strokes,
		"shapes":      fresh.Shapes,
		"texts":       fresh.Texts,
		"stickyNotes": fresh.StickyNotes,
		"version":     int64(0),
		"lastCleared": nil,
		"createdAt":   fresh.CreatedAt,
		"updatedAt":   fresh.UpdatedAt,
	}}
	opts := mopts.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(mopts.After)

	var doc model.Document
	if err := s.boards.FindOneAndUpdate(ctx, bson.M{"_id": projectID}, update, opts).Decode(&doc); err != nil {
		return nil, unavailable("getOrCreate", err)
	}
	doc.Normalize()
	return &doc, nil
}

func (s *MongoStore) Get(ctx context.Context, projectID string) (*model.Document, error) {
	var doc model.Document
	err := s.boards.FindOne(ctx, bson.M{"_id": projectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	doc.Normalize()
	return &doc, nil
}

// Update runs $set and $inc in one FindOneAndUpdate so the version bump is atomic.
func (s *MongoStore) Update(ctx context.Context, projectID string, p Patch) (*model.Document, error) {
	set := bson.M{
		"updatedAt":      s.opts.timestamp(),
		"lastMutationId": p.MutationID,
	}
	if p.Strokes != nil {
		set["strokes"] = nonNil(*p.Strokes)
	}
	if p.Shapes != nil {
		set["shapes"] = nonNil(*p.Shapes)
	}
	if p.Texts != nil {
		set["texts"] = nonNil(*p.Texts)
	}
	if p.StickyNotes != nil {
		set["stickyNotes"] = nonNil(*p.StickyNotes)
	}

	filter := bson.M{"_id": projectID}
	if p.IfVersion != nil {
		filter["version"] = *p.IfVersion
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": int64(1)}}
	opts := mopts.FindOneAndUpdate().SetReturnDocument(mopts.After)

	var doc model.Document
	err := s.boards.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if p.IfVersion == nil {
			return nil, ErrNotFound
		}
		existing, gerr := s.Get(ctx, projectID)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, unavailable("update", err)
	}
	doc.Normalize()
	s.publish(ctx, &doc, false)
	return &doc, nil
}

func (s *MongoStore) Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error) {
	now := s.opts.timestamp()
	update := bson.M{
		"$set": bson.M{
			"strokes":        []model.Stroke{},
			"shapes":         []model.Shape{},
			"texts":          []model.TextElement{},
			"stickyNotes":    []model.StickyNote{},
			"version":        int64(0),
			"lastCleared":    now,
			"lastMutationId": mutationID,
			"updatedAt":      now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := mopts.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(mopts.After)

	var doc model.Document
	if err := s.boards.FindOneAndUpdate(ctx, bson.M{"_id": projectID}, update, opts).Decode(&doc); err != nil {
		return nil, unavailable("clear", err)
	}
	doc.Normalize()
	s.publish(ctx, &doc, true)
	return &doc, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error) {
	return s.subscribe(ctx, projectID, fn)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
