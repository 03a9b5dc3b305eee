package store

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/pubsub"
)

// notifier publishes changes on a bus keyed by project id.
type notifier struct {
	bus    pubsub.Bus
	logger *zap.Logger
}

func (n notifier) publish(ctx context.Context, doc *model.Document, cleared bool) {
	c := Change{
		ProjectID:  doc.ProjectID,
		Document:   doc.Clone(),
		MutationID: doc.LastMutationID,
		Cleared:    cleared,
	}
	payload, err := json.Marshal(c)
	if err != nil {
		n.logger.Error("encode change", zap.String("projectId", doc.ProjectID), zap.Error(err))
		return
	}
	if err := n.bus.Publish(ctx, doc.ProjectID, payload); err != nil {
		n.logger.Warn("publish change",
			zap.String("projectId", doc.ProjectID),
			zap.Int64("version", doc.Version),
			zap.Error(err))
	}
}

func (n notifier) subscribe(ctx context.Context, projectID string, fn func(Change)) (func(), error) {
	ctx, done := context.WithCancel(ctx)
	cancel := n.bus.Subscribe(projectID, func(payload []byte) {
		var c Change
		if err := json.Unmarshal(payload, &c); err != nil {
			n.logger.Warn("decode change", zap.String("projectId", projectID), zap.Error(err))
			return
		}
		c.Document.Normalize()
		fn(c)
	})
	stop := context.AfterFunc(ctx, cancel)

	// 버스가 끊기면 구독자에게 마지막 변경으로 알린다
	if lt, ok := n.bus.(pubsub.Lifetime); ok {
		go func() {
			select {
			case <-lt.Done():
				cancel()
				if ctx.Err() != nil {
					return
				}
				n.logger.Warn("change feed stopped", zap.String("projectId", projectID), zap.Error(lt.Err()))
				fn(lost(projectID, lt.Err()))
			case <-ctx.Done():
			}
		}()
	}

	return func() {
		stop()
		cancel()
		done()
	}, nil
}
