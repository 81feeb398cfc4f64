// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"fmt"
	"strings"
	"time"

	"principal_analytics_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Upstream Change Events
// =============================================================================

// Upstream entities whose mutations can affect a principal summary.
const (
	EntityOrganizations       = "organizations"
	EntityContacts            = "contacts"
	EntityInteractions        = "interactions"
	EntityOpportunities       = "opportunities"
	EntityProductAssociations = "product_associations"
)

// Mutation kinds reported for upstream entities.
const (
	OperationInsert = "insert"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

var knownEntities = map[string]bool{
	EntityOrganizations:       true,
	EntityContacts:            true,
	EntityInteractions:        true,
	EntityOpportunities:       true,
	EntityProductAssociations: true,
}

var knownOperations = map[string]bool{
	OperationInsert: true,
	OperationUpdate: true,
	OperationDelete: true,
}

// UpstreamChanged is published after an upstream statement committed. It
// carries no row identity: any change schedules a recompute of all principals.
type UpstreamChanged struct {
	BaseEvent
	Entity    string `json:"entity"`
	Operation string `json:"operation"`
}

func (e UpstreamChanged) EventName() string { return "principals.upstream.changed" }

// NewUpstreamChanged normalizes and validates an upstream change notification.
func NewUpstreamChanged(entity, operation string) (UpstreamChanged, error) {
	entity = strings.ToLower(strings.TrimSpace(entity))
	operation = strings.ToLower(strings.TrimSpace(operation))
	if !knownEntities[entity] {
		return UpstreamChanged{}, fmt.Errorf("unknown upstream entity %q", entity)
	}
	if !knownOperations[operation] {
		return UpstreamChanged{}, fmt.Errorf("unknown upstream operation %q", operation)
	}
	return UpstreamChanged{BaseEvent: NewBaseEvent(), Entity: entity, Operation: operation}, nil
}

// =============================================================================
// Summary Events
// =============================================================================

// PrincipalSummariesRefreshed is published after a full refresh cycle.
type PrincipalSummariesRefreshed struct {
	BaseEvent
	Attempted int           `json:"attempted"`
	Refreshed int           `json:"refreshed"`
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func (e PrincipalSummariesRefreshed) EventName() string { return "principals.summaries.refreshed" }

// PrincipalSummaryRefreshed is published after a single principal was
// recomputed on request. Removed is set when the principal no longer qualifies.
type PrincipalSummaryRefreshed struct {
	BaseEvent
	PrincipalID uuid.UUID `json:"principalId"`
	Removed     bool      `json:"removed"`
}

func (e PrincipalSummaryRefreshed) EventName() string { return "principals.summary.refreshed" }
