// Package repository persists derived principal summaries.
package repository

import (
	"context"

	"principal_analytics_backend/internal/principals/domain"

	"github.com/google/uuid"
)

const summaryNotFoundMessage = "principal summary not found"

// Store is the derived summary store. Every write replaces a whole row and
// becomes visible to readers atomically.
type Store interface {
	// Get returns the row for principalID or an apperr NotFound error.
	Get(ctx context.Context, principalID uuid.UUID) (domain.SummaryRow, error)

	// Replace upserts row. A row older than the stored one (by
	// summary_generated_at) is discarded; applied reports whether it won.
	Replace(ctx context.Context, row domain.SummaryRow) (applied bool, err error)

	// Delete removes the row for principalID. Deleting a missing row is not an error.
	Delete(ctx context.Context, principalID uuid.UUID) error

	// Prune removes every row whose principal is not in keep.
	Prune(ctx context.Context, keep []uuid.UUID) (removed int, err error)

	// Query filters, sorts and pages rows and digests the filtered set.
	Query(ctx context.Context, params domain.QueryParams) (domain.Page, error)

	// Stats computes the dashboard KPIs over all rows.
	Stats(ctx context.Context, topN int) (domain.SummaryStats, error)

	// All returns every row ordered by principal id.
	All(ctx context.Context) ([]domain.SummaryRow, error)
}
