package domain

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

const (
	DefaultTopPerformers = 5
	MaxTopPerformers     = 50
)

// TopPerformer is a compact ranking entry for dashboards.
type TopPerformer struct {
	PrincipalID        uuid.UUID      `json:"principal_id"`
	PrincipalName      string         `json:"principal_name"`
	EngagementScore    float64        `json:"engagement_score"`
	ActivityStatus     ActivityStatus `json:"activity_status"`
	TotalOpportunities int            `json:"total_opportunities"`
	ActiveProductCount int            `json:"active_product_count"`
}

// SummaryStats is the dashboard KPI view over the whole summary store.
type SummaryStats struct {
	TotalPrincipals             int            `json:"total_principals"`
	ActivePrincipals            int            `json:"active_principals"`
	PrincipalsWithProducts      int            `json:"principals_with_products"`
	PrincipalsWithOpportunities int            `json:"principals_with_opportunities"`
	AverageProductsPerPrincipal float64        `json:"average_products_per_principal"`
	AverageEngagementScore      float64        `json:"average_engagement_score"`
	TopPerformers               []TopPerformer `json:"top_performers"`
}

// ComputeStats derives the KPI view from summary rows. topN is clamped to
// [1, MaxTopPerformers]; zero selects the default.
func ComputeStats(rows []SummaryRow, topN int) SummaryStats {
	topN = NormalizeTopN(topN)

	stats := SummaryStats{TotalPrincipals: len(rows), TopPerformers: []TopPerformer{}}
	if len(rows) == 0 {
		return stats
	}

	var productSum int
	var scoreSum float64
	for _, r := range rows {
		if r.ActivityStatus == ActivityActive {
			stats.ActivePrincipals++
		}
		if r.ProductCount > 0 {
			stats.PrincipalsWithProducts++
		}
		if r.TotalOpportunities > 0 {
			stats.PrincipalsWithOpportunities++
		}
		productSum += r.ProductCount
		scoreSum += r.EngagementScore
	}
	stats.AverageProductsPerPrincipal = round2(float64(productSum) / float64(len(rows)))
	stats.AverageEngagementScore = round2(scoreSum / float64(len(rows)))

	ranked := slices.Clone(rows)
	slices.SortFunc(ranked, func(a, b SummaryRow) int {
		switch {
		case a.EngagementScore > b.EngagementScore:
			return -1
		case a.EngagementScore < b.EngagementScore:
			return 1
		}
		return bytes.Compare(a.PrincipalID[:], b.PrincipalID[:])
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for _, r := range ranked {
		stats.TopPerformers = append(stats.TopPerformers, TopPerformerFrom(r))
	}

	return stats
}

// TopPerformerFrom projects a summary row into a ranking entry.
func TopPerformerFrom(r SummaryRow) TopPerformer {
	return TopPerformer{
		PrincipalID:        r.PrincipalID,
		PrincipalName:      r.PrincipalName,
		EngagementScore:    r.EngagementScore,
		ActivityStatus:     r.ActivityStatus,
		TotalOpportunities: r.TotalOpportunities,
		ActiveProductCount: r.ActiveProductCount,
	}
}

// NormalizeTopN applies the default and upper bound for top-N requests.
func NormalizeTopN(n int) int {
	switch {
	case n <= 0:
		return DefaultTopPerformers
	case n > MaxTopPerformers:
		return MaxTopPerformers
	default:
		return n
	}
}
