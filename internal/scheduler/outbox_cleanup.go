package scheduler

import (
	"context"
	"time"

	"principal_analytics_backend/platform/logger"
)

const (
	defaultOutboxCleanupInterval = time.Hour
	defaultOutboxRetention       = 7 * 24 * time.Hour
)

type processedChangePurger interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxCleanup periodically removes relayed change notifications.
type OutboxCleanup struct {
	repo      processedChangePurger
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewOutboxCleanup(repo processedChangePurger, log *logger.Logger, interval, retention time.Duration) *OutboxCleanup {
	if interval <= 0 {
		interval = defaultOutboxCleanupInterval
	}
	if retention <= 0 {
		retention = defaultOutboxRetention
	}

	return &OutboxCleanup{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *OutboxCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *OutboxCleanup) cleanup(ctx context.Context) {
	cutoff := c.now().Add(-c.retention)

	deleted, err := c.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		c.log.Warn("outbox cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("outbox cleanup deleted processed changes", "deleted", deleted)
	}
}
