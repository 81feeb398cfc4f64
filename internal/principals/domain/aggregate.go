package domain

import (
	"bytes"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	day          = 24 * time.Hour
	recentWindow = 30 * day
	widerWindow  = 90 * day
)

// closedStages are opportunity stages that no longer count as active.
var closedStages = map[string]bool{
	"closed_won":  true,
	"closed_lost": true,
	"won":         true,
	"lost":        true,
}

// Aggregate reduces one principal's upstream rows into a RawAggregate.
// Each relation is reduced independently so a principal with many contacts
// and many opportunities never multiplies counts.
func Aggregate(snapshot UpstreamSnapshot, now time.Time) RawAggregate {
	return RawAggregate{
		PrincipalID:     snapshot.Principal.ID,
		Contacts:        AggregateContacts(snapshot.Contacts),
		Interactions:    AggregateInteractions(snapshot.Interactions, now),
		Opportunities:   AggregateOpportunities(snapshot.Opportunities, now),
		Products:        AggregateProducts(snapshot.Products),
		DistributorID:   snapshot.Principal.DistributorID,
		DistributorName: snapshot.Principal.DistributorName,
	}
}

// AggregateContacts counts contacts and picks the most recently updated one
// as the primary contact.
func AggregateContacts(contacts []Contact) ContactStats {
	stats := ContactStats{ContactCount: len(contacts)}

	var latest *Contact
	for i := range contacts {
		c := &contacts[i]
		if c.IsActive {
			stats.ActiveContacts++
		}
		if latest == nil || newerThan(c.UpdatedAt, c.ID, latest.UpdatedAt, latest.ID) {
			latest = c
		}
	}

	if latest != nil {
		updated := latest.UpdatedAt
		stats.LastContactUpdate = &updated
		stats.PrimaryContactName = nonEmpty(latest.FullName())
		if latest.Email != nil {
			stats.PrimaryContactEmail = nonEmpty(*latest.Email)
		}
	}

	return stats
}

// AggregateInteractions computes volume, recency and follow-up figures.
func AggregateInteractions(interactions []Interaction, now time.Time) InteractionStats {
	stats := InteractionStats{TotalInteractions: len(interactions)}

	recentCutoff := now.Add(-recentWindow)
	widerCutoff := now.Add(-widerWindow)

	var latest *Interaction
	var ratingSum, ratingCount int
	for i := range interactions {
		it := &interactions[i]

		if !it.InteractionDate.Before(recentCutoff) {
			stats.InteractionsLast30Days++
		}
		if !it.InteractionDate.Before(widerCutoff) {
			stats.InteractionsLast90Days++
		}
		if latest == nil || newerThan(it.InteractionDate, it.ID, latest.InteractionDate, latest.ID) {
			latest = it
		}
		if it.Rating != nil {
			ratingSum += *it.Rating
			ratingCount++
		}
		if isPositiveOutcome(it.Outcome) {
			stats.PositiveInteractionCount++
		}
		if it.FollowUpRequired {
			stats.FollowUpsRequired++
			if it.FollowUpDate != nil && !it.FollowUpDate.Before(now) {
				if stats.NextFollowUpDate == nil || it.FollowUpDate.Before(*stats.NextFollowUpDate) {
					next := *it.FollowUpDate
					stats.NextFollowUpDate = &next
				}
			}
		}
	}

	if latest != nil {
		last := latest.InteractionDate
		stats.LastInteractionDate = &last
		stats.LastInteractionType = nonEmpty(latest.Type)
	}
	if ratingCount > 0 {
		avg := round2(float64(ratingSum) / float64(ratingCount))
		stats.AvgInteractionRating = &avg
	}

	return stats
}

// AggregateOpportunities computes pipeline counts and the latest stage.
func AggregateOpportunities(opportunities []Opportunity, now time.Time) OpportunityStats {
	stats := OpportunityStats{TotalOpportunities: len(opportunities)}

	recentCutoff := now.Add(-recentWindow)

	var latest *Opportunity
	var probabilitySum, probabilityCount int
	for i := range opportunities {
		o := &opportunities[i]
		stage := normalizeStage(o.Stage)
		won := o.IsWon || stage == "closed_won" || stage == "won"

		if won {
			stats.WonOpportunities++
		}
		if !won && !closedStages[stage] {
			stats.ActiveOpportunities++
		}
		if !o.CreatedAt.Before(recentCutoff) {
			stats.OpportunitiesLast30Days++
		}
		if o.Probability != nil {
			probabilitySum += *o.Probability
			probabilityCount++
		}
		if latest == nil || newerThan(o.UpdatedAt, o.ID, latest.UpdatedAt, latest.ID) {
			latest = o
		}
	}

	if latest != nil {
		updated := latest.UpdatedAt
		stats.LatestOpportunityDate = &updated
		stats.LatestOpportunityStage = nonEmpty(latest.Stage)
	}
	if probabilityCount > 0 {
		avg := round2(float64(probabilitySum) / float64(probabilityCount))
		stats.AvgProbabilityPercent = &avg
	}

	return stats
}

// AggregateProducts counts associations and derives the category profile.
// The primary category is the most common one among active associations,
// falling back to all associations; ties resolve alphabetically.
func AggregateProducts(products []ProductAssociation) ProductStats {
	stats := ProductStats{ProductCount: len(products), ProductCategories: []string{}}

	seen := make(map[string]bool)
	activeFreq := make(map[string]int)
	allFreq := make(map[string]int)
	for _, p := range products {
		if p.IsActive {
			stats.ActiveProductCount++
		}
		if p.Category == nil {
			continue
		}
		category := strings.TrimSpace(*p.Category)
		if category == "" {
			continue
		}
		if !seen[category] {
			seen[category] = true
			stats.ProductCategories = append(stats.ProductCategories, category)
		}
		allFreq[category]++
		if p.IsActive {
			activeFreq[category]++
		}
	}
	slices.Sort(stats.ProductCategories)

	freq := activeFreq
	if len(freq) == 0 {
		freq = allFreq
	}
	best, bestCount := "", 0
	for _, category := range stats.ProductCategories {
		if n := freq[category]; n > bestCount {
			best, bestCount = category, n
		}
	}
	if bestCount > 0 {
		stats.PrimaryProductCategory = &best
	}

	return stats
}

// newerThan reports whether (ts, id) should win a "most recent" selection
// over (otherTS, otherID). Equal timestamps prefer the smaller id so repeated
// recomputes pick the same row.
func newerThan(ts time.Time, id uuid.UUID, otherTS time.Time, otherID uuid.UUID) bool {
	if ts.After(otherTS) {
		return true
	}
	if ts.Before(otherTS) {
		return false
	}
	return bytes.Compare(id[:], otherID[:]) < 0
}

func isPositiveOutcome(outcome *string) bool {
	if outcome == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(*outcome)) {
	case "positive", "successful":
		return true
	default:
		return false
	}
}

func normalizeStage(stage string) string {
	s := strings.ToLower(strings.TrimSpace(stage))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

func nonEmpty(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
