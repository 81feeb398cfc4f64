// Package changefeed turns upstream mutations into summary refreshes. Writers
// record changes in the outbox or report them on the bus; the dispatcher and
// the scheduler relay both end in a coalesced full refresh.
package changefeed

import (
	"context"

	"principal_analytics_backend/internal/changefeed/outbox"
	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/platform/apperr"
)

// Recorder appends change notifications to the outbox.
type Recorder struct {
	repo *outbox.Repository
}

func NewRecorder(repo *outbox.Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends one notification through tx so it commits or rolls back with
// the caller's upstream write. A nil tx writes through the pool.
func (r *Recorder) Record(ctx context.Context, tx outbox.Querier, entity, operation string) error {
	change, err := events.NewUpstreamChanged(entity, operation)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	if _, err := r.repo.Insert(ctx, tx, change.Entity, change.Operation, change.OccurredAt()); err != nil {
		return apperr.Wrap(apperr.KindInternal, "record upstream change", err)
	}
	return nil
}

// RecordChange appends a notification outside any upstream transaction.
func (r *Recorder) RecordChange(ctx context.Context, entity, operation string) error {
	return r.Record(ctx, nil, entity, operation)
}
