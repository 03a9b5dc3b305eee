package remote

import (
	"context"
	"time"

	"go.uber.org/zap"

	"whiteboard-backend/internal/model"
)

// Poller keeps a local copy of a board by periodic delta fetches.
//
// Each round asks only for elements newer than the newest one seen. Edits to existing
// elements keep their createdAt and are invisible to that filter, so every fullEvery rounds
// the whole board is fetched again.
type Poller struct {
	client    *Client
	projectID string
	interval  time.Duration
	fullEvery int
	logger    *zap.Logger

	doc    model.Document
	since  *time.Time
	rounds int
}

// NewPoller polls projectID every interval.
func NewPoller(c *Client, projectID string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		client:    c,
		projectID: projectID,
		interval:  interval,
		fullEvery: 10,
		logger:    c.logger,
		doc:       model.Document{ProjectID: projectID},
	}
}

// Poll runs one round and reports whether the local copy changed.
func (p *Poller) Poll(ctx context.Context) (model.Document, bool, error) {
	full := p.rounds%p.fullEvery == 0
	since := p.since
	if full {
		since = nil
	}

	d, err := p.client.Fetch(ctx, p.projectID, since, p.doc.LastCleared)
	if err != nil {
		return p.doc.Clone(), false, err
	}

	first := p.rounds == 0
	changed := first || d.BoardWasCleared || d.Version != p.doc.Version
	if d.BoardWasCleared || full {
		p.since = nil
	}
	d.Apply(&p.doc, full)

	if n := d.Newest(); !n.IsZero() && (p.since == nil || n.After(*p.since)) {
		p.since = &n
	}
	p.rounds++
	return p.doc.Clone(), changed, nil
}

// Run polls until ctx ends, passing every changed copy to fn. Fetch errors are logged and
// retried on the next tick.
func (p *Poller) Run(ctx context.Context, fn func(model.Document)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		doc, changed, err := p.Poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			p.logger.Warn("poll failed", zap.String("projectId", p.projectID), zap.Error(err))
		case changed:
			fn(doc)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
