// Package domain holds the pure model of the principal activity engine:
// upstream row shapes, the per-principal rollup, scoring, and the query model.
// Nothing in this package performs I/O.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityStatus is the recency bucket derived from the last interaction.
type ActivityStatus string

const (
	ActivityNone     ActivityStatus = "NO_ACTIVITY"
	ActivityStale    ActivityStatus = "STALE"
	ActivityModerate ActivityStatus = "MODERATE"
	ActivityActive   ActivityStatus = "ACTIVE"
)

// Rank orders statuses from least to most recent.
func (s ActivityStatus) Rank() int {
	switch s {
	case ActivityStale:
		return 1
	case ActivityModerate:
		return 2
	case ActivityActive:
		return 3
	default:
		return 0
	}
}

// ParseActivityStatus accepts the enum value case-insensitively.
func ParseActivityStatus(value string) (ActivityStatus, bool) {
	switch ActivityStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case ActivityNone:
		return ActivityNone, true
	case ActivityStale:
		return ActivityStale, true
	case ActivityModerate:
		return ActivityModerate, true
	case ActivityActive:
		return ActivityActive, true
	default:
		return "", false
	}
}

// =============================================================================
// Upstream rows (read-only)
// =============================================================================

// Principal is an organization flagged as a principal.
type Principal struct {
	ID              uuid.UUID
	Name            string
	Status          string
	Type            string
	Industry        *string
	Size            *string
	LeadScore       float64
	IsActive        bool
	DistributorID   *uuid.UUID
	DistributorName *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Contact struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     *string
	IsActive  bool
	UpdatedAt time.Time
}

// FullName joins first and last name, trimming empty parts.
func (c Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Interaction is reachable from a principal through an opportunity or a contact.
type Interaction struct {
	ID               uuid.UUID
	Type             string
	InteractionDate  time.Time
	Rating           *int
	Outcome          *string
	FollowUpRequired bool
	FollowUpDate     *time.Time
}

type Opportunity struct {
	ID          uuid.UUID
	Stage       string
	IsWon       bool
	Probability *int
	ProductID   *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductAssociation links a principal to a product it carries.
type ProductAssociation struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Category  *string
	IsActive  bool
}

// UpstreamSnapshot is everything the engine reads for one principal.
type UpstreamSnapshot struct {
	Principal     Principal
	Contacts      []Contact
	Interactions  []Interaction
	Opportunities []Opportunity
	Products      []ProductAssociation
}

// =============================================================================
// Rollup
// =============================================================================

type ContactStats struct {
	ContactCount        int
	ActiveContacts      int
	PrimaryContactName  *string
	PrimaryContactEmail *string
	LastContactUpdate   *time.Time
}

type InteractionStats struct {
	TotalInteractions        int
	InteractionsLast30Days   int
	InteractionsLast90Days   int
	LastInteractionDate      *time.Time
	LastInteractionType      *string
	NextFollowUpDate         *time.Time
	AvgInteractionRating     *float64
	PositiveInteractionCount int
	FollowUpsRequired        int
}

type OpportunityStats struct {
	TotalOpportunities      int
	ActiveOpportunities     int
	WonOpportunities        int
	OpportunitiesLast30Days int
	LatestOpportunityStage  *string
	LatestOpportunityDate   *time.Time
	AvgProbabilityPercent   *float64
}

type ProductStats struct {
	ProductCount           int
	ActiveProductCount     int
	ProductCategories      []string
	PrimaryProductCategory *string
}

// RawAggregate is the unscored rollup for one principal.
type RawAggregate struct {
	PrincipalID     uuid.UUID
	Contacts        ContactStats
	Interactions    InteractionStats
	Opportunities   OpportunityStats
	Products        ProductStats
	DistributorID   *uuid.UUID
	DistributorName *string
}
