package domain

import (
	"math"
	"time"
)

const (
	// Component weights of the engagement score. With the caps below the
	// reachable maximum is 54.
	leadWeight        = 0.40
	interactionWeight = 0.30
	opportunityWeight = 0.20
	productWeight     = 0.10

	// Per-component caps, applied before weighting.
	maxLeadScore         = 100.0
	maxInteractionPoints = 30.0
	maxOpportunityPoints = 20.0
	maxProductPoints     = 10.0
	pointsPerInteraction = 5.0
	pointsPerOpportunity = 10.0
	pointsPerProduct     = 2.0
	minEngagementScore   = 0.0
	maxEngagementScore   = 100.0
	activeWindow         = 7 * day
	moderateWindow       = 30 * day
)

// ScoreBreakdown exposes the weighted contribution of each component.
type ScoreBreakdown struct {
	Lead        float64 `json:"lead"`
	Interaction float64 `json:"interaction"`
	Opportunity float64 `json:"opportunity"`
	Product     float64 `json:"product"`
	Total       float64 `json:"total"`
}

// Breakdown computes the weighted components and the clamped total.
func Breakdown(agg RawAggregate, leadScore float64) ScoreBreakdown {
	b := ScoreBreakdown{
		Lead:        clamp(leadScore, 0, maxLeadScore) * leadWeight,
		Interaction: clamp(float64(agg.Interactions.InteractionsLast30Days)*pointsPerInteraction, 0, maxInteractionPoints) * interactionWeight,
		Opportunity: clamp(float64(agg.Opportunities.ActiveOpportunities)*pointsPerOpportunity, 0, maxOpportunityPoints) * opportunityWeight,
		Product:     clamp(float64(agg.Products.ActiveProductCount)*pointsPerProduct, 0, maxProductPoints) * productWeight,
	}
	b.Total = round2(clamp(b.Lead+b.Interaction+b.Opportunity+b.Product, minEngagementScore, maxEngagementScore))
	return b
}

// Score returns the engagement score in [0,100], rounded to two decimals.
func Score(agg RawAggregate, leadScore float64) float64 {
	return Breakdown(agg, leadScore).Total
}

// ClassifyActivity buckets the last interaction relative to now. A nil
// timestamp means no interaction on record. Interactions dated after now
// count as active.
func ClassifyActivity(lastInteraction *time.Time, now time.Time) ActivityStatus {
	if lastInteraction == nil {
		return ActivityNone
	}
	age := now.Sub(*lastInteraction)
	switch {
	case age <= activeWindow:
		return ActivityActive
	case age <= moderateWindow:
		return ActivityModerate
	default:
		return ActivityStale
	}
}

// Evaluate scores and classifies an aggregate at the given instant.
func Evaluate(agg RawAggregate, leadScore float64, now time.Time) (float64, ActivityStatus) {
	return Score(agg, leadScore), ClassifyActivity(agg.Interactions.LastInteractionDate, now)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
