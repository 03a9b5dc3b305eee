package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/pubsub"
)

// GormStore SQL 저장소 (postgres / sqlite). One row per project in whiteboard_documents.
type GormStore struct {
	db *gorm.DB
	notifier
	opts options
}

func NewGormStore(db *gorm.DB, bus pubsub.Bus, logger *zap.Logger, opts ...Option) *GormStore {
	if bus == nil {
		bus = pubsub.NewHub()
	}
	return &GormStore{
		db:       db,
		notifier: notifier{bus: bus, logger: logger.Named("gorm-store")},
		opts:     newOptions(opts),
	}
}

// AutoMigrate 테이블 생성/갱신
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.WhiteboardRecord{})
}

func (s *GormStore) GetOrCreate(ctx context.Context, projectID string) (*model.Document, error) {
	rec := model.RecordFromDocument(model.NewDocument(projectID, s.opts.timestamp()))
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, unavailable("getOrCreate", err)
	}
	doc, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, unavailable("getOrCreate", gorm.ErrRecordNotFound)
	}
	return doc, nil
}

func (s *GormStore) Get(ctx context.Context, projectID string) (*model.Document, error) {
	var rec model.WhiteboardRecord
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return rec.Document(), nil
}

func (s *GormStore) Update(ctx context.Context, projectID string, p Patch) (*model.Document, error) {
	updates := map[string]any{
		"version":          gorm.Expr("version + ?", 1),
		"updated_at":       s.opts.timestamp(),
		"last_mutation_id": p.MutationID,
	}
	if p.Strokes != nil {
		updates["strokes"] = datatypes.NewJSONSlice(*p.Strokes)
	}
	if p.Shapes != nil {
		updates["shapes"] = datatypes.NewJSONSlice(*p.Shapes)
	}
	if p.Texts != nil {
		updates["texts"] = datatypes.NewJSONSlice(*p.Texts)
	}
	if p.StickyNotes != nil {
		updates["sticky_notes"] = datatypes.NewJSONSlice(*p.StickyNotes)
	}

	var rec model.WhiteboardRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.WhiteboardRecord{}).Where("project_id = ?", projectID)
		if p.IfVersion != nil {
			q = q.Where("version = ?", *p.IfVersion)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.WhiteboardRecord{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return tx.Where("project_id = ?", projectID).First(&rec).Error
	})
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return nil, err
	case err != nil:
		return nil, unavailable("update", err)
	}

	doc := rec.Document()
	s.publish(ctx, doc, false)
	return doc, nil
}

func (s *GormStore) Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error) {
	now := s.opts.timestamp()
	doc := model.NewDocument(projectID, now)
	doc.Reset(now)
	doc.LastMutationID = mutationID
	rec := model.RecordFromDocument(doc)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"strokes", "shapes", "texts", "sticky_notes",
			"version", "last_cleared", "last_mutation_id", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return nil, unavailable("clear", err)
	}

	cleared, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if cleared == nil {
		return nil, unavailable("clear", gorm.ErrRecordNotFound)
	}
	s.publish(ctx, cleared, true)
	return cleared, nil
}

func (s *GormStore) Subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error) {
	return s.subscribe(ctx, projectID, fn)
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
