// Package upstream reads the CRM relations that feed principal summaries.
// The engine never writes to these tables.
package upstream

import (
	"context"

	"principal_analytics_backend/internal/principals/domain"

	"github.com/google/uuid"
)

// Reader provides point-in-time reads of upstream CRM data.
type Reader interface {
	// ListPrincipalIDs returns every organization that currently qualifies
	// as a principal (flagged and not soft-deleted), ordered by id.
	ListPrincipalIDs(ctx context.Context) ([]uuid.UUID, error)

	// Snapshot loads one principal with all related rows. found is false when
	// the id does not exist or no longer qualifies as a principal.
	Snapshot(ctx context.Context, principalID uuid.UUID) (snapshot domain.UpstreamSnapshot, found bool, err error)
}
