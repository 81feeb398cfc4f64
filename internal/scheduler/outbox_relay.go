package scheduler

import (
	"context"
	"errors"
	"time"

	"principal_analytics_backend/internal/changefeed/outbox"
	"principal_analytics_backend/platform/config"
	"principal_analytics_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultOutboxPollInterval = 2 * time.Second
	defaultOutboxBatchSize    = 100
	outboxMaxAttempts         = 10
)

// outboxClaimLease is how long a claim may stay unmarked before another relay
// takes the rows over. It is far longer than one enqueue.
const outboxClaimLease = 5 * time.Minute

type changeOutbox interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]outbox.Record, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error
	Release(ctx context.Context, ids []uuid.UUID) error
	MarkPending(ctx context.Context, ids []uuid.UUID, lastError *string) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, lastError string) error
}

type refreshEnqueuer interface {
	EnqueueRefreshAll(ctx context.Context, reason string) error
}

// OutboxRelay turns batches of recorded upstream changes into a single
// refresh task. Changes claimed while a refresh is already queued or running
// go back to pending so the next refresh after it still sees them.
type OutboxRelay struct {
	repo      changeOutbox
	client    refreshEnqueuer
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewOutboxRelay(repo changeOutbox, client refreshEnqueuer, cfg config.OutboxConfig, log *logger.Logger) *OutboxRelay {
	interval := cfg.GetOutboxPollInterval()
	if interval <= 0 {
		interval = defaultOutboxPollInterval
	}
	batchSize := cfg.GetOutboxBatchSize()
	if batchSize < 1 {
		batchSize = defaultOutboxBatchSize
	}
	return &OutboxRelay{
		repo:      repo,
		client:    client,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) {
	if r == nil || r.repo == nil || r.client == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.relayOnce(ctx)
	}
}

func (r *OutboxRelay) relayOnce(ctx context.Context) {
	records, err := r.repo.ClaimPending(ctx, r.batchSize, outboxClaimLease)
	if err != nil {
		r.log.Warn("outbox claim failed", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	err = r.client.EnqueueRefreshAll(ctx, ReasonUpstreamChanged)
	switch {
	case err == nil:
		if err := r.repo.MarkProcessed(ctx, ids); err != nil {
			r.log.Warn("outbox mark processed failed", "error", err, "count", len(ids))
		}
		r.log.Debug("refresh enqueued for upstream changes", "changes", len(ids))
	case errors.Is(err, ErrRefreshAlreadyQueued):
		if err := r.repo.Release(ctx, ids); err != nil {
			r.log.Warn("outbox release failed", "error", err, "count", len(ids))
		}
	default:
		r.log.Warn("refresh enqueue failed", "error", err, "changes", len(ids))
		r.giveBack(ctx, records, err.Error())
	}
}

// giveBack returns rows for another attempt and fails those out of attempts.
func (r *OutboxRelay) giveBack(ctx context.Context, records []outbox.Record, msg string) {
	var retry, exhausted []uuid.UUID
	for _, rec := range records {
		if rec.Attempts >= outboxMaxAttempts {
			exhausted = append(exhausted, rec.ID)
			continue
		}
		retry = append(retry, rec.ID)
	}
	if err := r.repo.MarkPending(ctx, retry, &msg); err != nil {
		r.log.Warn("outbox release failed", "error", err, "count", len(retry))
	}
	if err := r.repo.MarkFailed(ctx, exhausted, msg); err != nil {
		r.log.Warn("outbox mark failed failed", "error", err, "count", len(exhausted))
	}
}
