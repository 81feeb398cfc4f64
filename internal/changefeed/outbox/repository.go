// Package outbox persists upstream change notifications until the scheduler
// relays them into a refresh task.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusEnqueued       Status = "enqueued"
	StatusProcessed      Status = "processed"
	StatusFailed         Status = "failed"
	errRepoNotConfigured        = "outbox repository not configured"
	defaultClaimLimit           = 100
	defaultClaimLease           = 5 * time.Minute
)

// claimSQL takes pending rows plus enqueued rows whose claim outlived the
// lease, which is what a relay that died before marking them leaves behind.
const claimSQL = `WITH cte AS (
	SELECT id
	FROM analytics_change_outbox
	WHERE status = 'pending'
	   OR (status = 'enqueued' AND updated_at < now() - ($2::bigint * interval '1 millisecond'))
	ORDER BY occurred_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE analytics_change_outbox o
SET status = 'enqueued', attempts = o.attempts + 1, updated_at = now()
FROM cte
WHERE o.id = cte.id
RETURNING o.id, o.entity, o.operation, o.occurred_at, o.status, o.attempts`

// releaseSQL returns claimed rows without charging the claim as an attempt.
const releaseSQL = `UPDATE analytics_change_outbox
SET status = 'pending', attempts = GREATEST(attempts - 1, 0), last_error = NULL, updated_at = now()
WHERE id = ANY($1::uuid[]) AND status = 'enqueued'`

type Record struct {
	ID         uuid.UUID
	Entity     string
	Operation  string
	OccurredAt time.Time
	Status     Status
	Attempts   int
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so writers can append to
// the outbox inside their own transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a pending change through q. A nil q uses the pool.
func (r *Repository) Insert(ctx context.Context, q Querier, entity, operation string, occurredAt time.Time) (uuid.UUID, error) {
	if q == nil {
		if r == nil || r.pool == nil {
			return uuid.Nil, errors.New(errRepoNotConfigured)
		}
		q = r.pool
	}
	if entity == "" {
		return uuid.Nil, fmt.Errorf("entity is required")
	}
	if operation == "" {
		return uuid.Nil, fmt.Errorf("operation is required")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO analytics_change_outbox (entity, operation, occurred_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		entity, operation, occurredAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox change: %w", err)
	}
	return id, nil
}

// ClaimPending moves up to limit claimable rows to enqueued and returns them.
// Rows stuck in enqueued for longer than lease are claimed again. Concurrent
// relays skip rows another relay already holds.
func (r *Repository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = defaultClaimLimit
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, claimSQL, limit, lease.Milliseconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.Operation, &rec.OccurredAt, &status, &rec.Attempts); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	return r.setStatus(ctx, ids, StatusProcessed, nil)
}

// MarkPending hands rows back to the next claim.
func (r *Repository) MarkPending(ctx context.Context, ids []uuid.UUID, lastError *string) error {
	return r.setStatus(ctx, ids, StatusPending, lastError)
}

// Release hands claimed rows back to the next claim and refunds the attempt
// the claim charged. It is for claims that were not tried, such as when a
// refresh is already queued.
func (r *Repository) Release(ctx context.Context, ids []uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, releaseSQL, ids); err != nil {
		return fmt.Errorf("release outbox changes: %w", err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, ids []uuid.UUID, lastError string) error {
	return r.setStatus(ctx, ids, StatusFailed, &lastError)
}

func (r *Repository) setStatus(ctx context.Context, ids []uuid.UUID, status Status, lastError *string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE analytics_change_outbox
		 SET status = $2, last_error = $3, updated_at = now()
		 WHERE id = ANY($1::uuid[])`,
		ids, string(status), lastError,
	)
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", status, err)
	}
	return nil
}

// DeleteProcessedBefore removes processed rows last touched before cutoff.
func (r *Repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM analytics_change_outbox
		 WHERE status = 'processed' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
