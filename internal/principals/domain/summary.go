package domain

import (
	"time"

	"github.com/google/uuid"
)

// SummaryRow is the derived per-principal analytics record. A row is always
// rebuilt whole from upstream state; it is never patched field by field.
type SummaryRow struct {
	PrincipalID        uuid.UUID `json:"principal_id"`
	PrincipalName      string    `json:"principal_name"`
	PrincipalStatus    string    `json:"principal_status"`
	PrincipalType      string    `json:"principal_type"`
	Industry           *string   `json:"industry"`
	Size               *string   `json:"size"`
	LeadScore          float64   `json:"lead_score"`
	IsActive           bool      `json:"is_active"`
	PrincipalCreatedAt time.Time `json:"principal_created_at"`
	PrincipalUpdatedAt time.Time `json:"principal_updated_at"`

	ContactCount        int        `json:"contact_count"`
	ActiveContacts      int        `json:"active_contacts"`
	PrimaryContactName  *string    `json:"primary_contact_name"`
	PrimaryContactEmail *string    `json:"primary_contact_email"`
	LastContactUpdate   *time.Time `json:"last_contact_update"`

	TotalInteractions        int        `json:"total_interactions"`
	InteractionsLast30Days   int        `json:"interactions_last_30_days"`
	InteractionsLast90Days   int        `json:"interactions_last_90_days"`
	LastInteractionDate      *time.Time `json:"last_interaction_date"`
	LastInteractionType      *string    `json:"last_interaction_type"`
	NextFollowUpDate         *time.Time `json:"next_follow_up_date"`
	AvgInteractionRating     *float64   `json:"avg_interaction_rating"`
	PositiveInteractionCount int        `json:"positive_interaction_count"`
	FollowUpsRequired        int        `json:"follow_ups_required"`

	TotalOpportunities      int        `json:"total_opportunities"`
	ActiveOpportunities     int        `json:"active_opportunities"`
	WonOpportunities        int        `json:"won_opportunities"`
	OpportunitiesLast30Days int        `json:"opportunities_last_30_days"`
	LatestOpportunityStage  *string    `json:"latest_opportunity_stage"`
	LatestOpportunityDate   *time.Time `json:"latest_opportunity_date"`
	AvgProbabilityPercent   *float64   `json:"avg_probability_percent"`

	ProductCount           int      `json:"product_count"`
	ActiveProductCount     int      `json:"active_product_count"`
	ProductCategories      []string `json:"product_categories"`
	PrimaryProductCategory *string  `json:"primary_product_category"`

	DistributorID   *uuid.UUID `json:"distributor_id"`
	DistributorName *string    `json:"distributor_name"`

	LastActivityDate   time.Time      `json:"last_activity_date"`
	ActivityStatus     ActivityStatus `json:"activity_status"`
	EngagementScore    float64        `json:"engagement_score"`
	SummaryGeneratedAt time.Time      `json:"summary_generated_at"`
}

// BuildSummary assembles the full summary row for a principal at recompute
// time now. now doubles as the row's summary_generated_at.
func BuildSummary(p Principal, agg RawAggregate, now time.Time) SummaryRow {
	score, status := Evaluate(agg, p.LeadScore, now)

	categories := agg.Products.ProductCategories
	if categories == nil {
		categories = []string{}
	}

	return SummaryRow{
		PrincipalID:        p.ID,
		PrincipalName:      p.Name,
		PrincipalStatus:    p.Status,
		PrincipalType:      p.Type,
		Industry:           p.Industry,
		Size:               p.Size,
		LeadScore:          clamp(p.LeadScore, 0, maxLeadScore),
		IsActive:           p.IsActive,
		PrincipalCreatedAt: p.CreatedAt,
		PrincipalUpdatedAt: p.UpdatedAt,

		ContactCount:        agg.Contacts.ContactCount,
		ActiveContacts:      agg.Contacts.ActiveContacts,
		PrimaryContactName:  agg.Contacts.PrimaryContactName,
		PrimaryContactEmail: agg.Contacts.PrimaryContactEmail,
		LastContactUpdate:   agg.Contacts.LastContactUpdate,

		TotalInteractions:        agg.Interactions.TotalInteractions,
		InteractionsLast30Days:   agg.Interactions.InteractionsLast30Days,
		InteractionsLast90Days:   agg.Interactions.InteractionsLast90Days,
		LastInteractionDate:      agg.Interactions.LastInteractionDate,
		LastInteractionType:      agg.Interactions.LastInteractionType,
		NextFollowUpDate:         agg.Interactions.NextFollowUpDate,
		AvgInteractionRating:     agg.Interactions.AvgInteractionRating,
		PositiveInteractionCount: agg.Interactions.PositiveInteractionCount,
		FollowUpsRequired:        agg.Interactions.FollowUpsRequired,

		TotalOpportunities:      agg.Opportunities.TotalOpportunities,
		ActiveOpportunities:     agg.Opportunities.ActiveOpportunities,
		WonOpportunities:        agg.Opportunities.WonOpportunities,
		OpportunitiesLast30Days: agg.Opportunities.OpportunitiesLast30Days,
		LatestOpportunityStage:  agg.Opportunities.LatestOpportunityStage,
		LatestOpportunityDate:   agg.Opportunities.LatestOpportunityDate,
		AvgProbabilityPercent:   agg.Opportunities.AvgProbabilityPercent,

		ProductCount:           agg.Products.ProductCount,
		ActiveProductCount:     agg.Products.ActiveProductCount,
		ProductCategories:      categories,
		PrimaryProductCategory: agg.Products.PrimaryProductCategory,

		DistributorID:   agg.DistributorID,
		DistributorName: agg.DistributorName,

		LastActivityDate:   lastActivity(p.UpdatedAt, agg, now),
		ActivityStatus:     status,
		EngagementScore:    score,
		SummaryGeneratedAt: now,
	}
}

// lastActivity is the latest of the principal's own update and the newest
// contact, interaction and opportunity timestamps, never later than now.
func lastActivity(principalUpdated time.Time, agg RawAggregate, now time.Time) time.Time {
	latest := principalUpdated
	for _, ts := range []*time.Time{
		agg.Contacts.LastContactUpdate,
		agg.Interactions.LastInteractionDate,
		agg.Opportunities.LatestOpportunityDate,
	} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	if latest.After(now) {
		return now
	}
	return latest
}

// WithoutGeneratedAt returns a copy with summary_generated_at cleared, for
// comparing two recomputes of the same upstream state.
func (r SummaryRow) WithoutGeneratedAt() SummaryRow {
	r.SummaryGeneratedAt = time.Time{}
	return r
}
