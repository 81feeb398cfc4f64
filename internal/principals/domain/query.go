package domain

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	DefaultSortField = "engagement_score"
	DefaultSortOrder = "desc"
	DefaultPageSize  = 20
	MaxPageSize      = 100
)

// QueryParams are the optional, ANDed filters plus sort and pagination for
// a summary listing. Zero values mean "not set".
type QueryParams struct {
	Search           string
	Statuses         []ActivityStatus
	MinScore         *float64
	MaxScore         *float64
	HasOpportunities *bool
	DistributorID    *uuid.UUID
	ProductCategory  string
	SortBy           string
	SortOrder        string
	Page             int
	Limit            int
}

// Pagination describes where a page sits in the filtered result set.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// AnalyticsDigest summarizes the filtered (pre-pagination) result set.
type AnalyticsDigest struct {
	TotalCount         int     `json:"total_count"`
	ActiveCount        int     `json:"active_count"`
	AvgEngagementScore float64 `json:"avg_engagement_score"`
	TotalInteractions  int     `json:"total_interactions"`
	TotalOpportunities int     `json:"total_opportunities"`
}

// Page is one page of summary rows with its metadata and digest.
type Page struct {
	Data             []SummaryRow    `json:"data"`
	Pagination       Pagination      `json:"pagination"`
	AnalyticsSummary AnalyticsDigest `json:"analytics_summary"`
}

// sortKey holds the comparable value of one field. Only one of n, t, s is
// meaningful for a given field; the others stay zero.
type sortKey struct {
	null bool
	n    float64
	t    int64
	s    string
}

type keyFunc func(SummaryRow) sortKey

func num(v float64) sortKey { return sortKey{n: v} }
func str(v string) sortKey  { return sortKey{s: v} }

func optNum(v *float64) sortKey {
	if v == nil {
		return sortKey{null: true}
	}
	return sortKey{n: *v}
}

func optStr(v *string) sortKey {
	if v == nil {
		return sortKey{null: true}
	}
	return sortKey{s: *v}
}

func timeKey(v time.Time) sortKey { return sortKey{t: v.UnixNano()} }

func optTimeKey(v *time.Time) sortKey {
	if v == nil {
		return sortKey{null: true}
	}
	return timeKey(*v)
}

func boolKey(v bool) sortKey {
	if v {
		return sortKey{n: 1}
	}
	return sortKey{}
}

// sortFields lists every sortable summary field by its JSON name.
var sortFields = map[string]keyFunc{
	"principal_name":             func(r SummaryRow) sortKey { return str(r.PrincipalName) },
	"principal_status":           func(r SummaryRow) sortKey { return str(r.PrincipalStatus) },
	"principal_type":             func(r SummaryRow) sortKey { return str(r.PrincipalType) },
	"industry":                   func(r SummaryRow) sortKey { return optStr(r.Industry) },
	"size":                       func(r SummaryRow) sortKey { return optStr(r.Size) },
	"lead_score":                 func(r SummaryRow) sortKey { return num(r.LeadScore) },
	"is_active":                  func(r SummaryRow) sortKey { return boolKey(r.IsActive) },
	"principal_created_at":       func(r SummaryRow) sortKey { return timeKey(r.PrincipalCreatedAt) },
	"principal_updated_at":       func(r SummaryRow) sortKey { return timeKey(r.PrincipalUpdatedAt) },
	"contact_count":              func(r SummaryRow) sortKey { return num(float64(r.ContactCount)) },
	"active_contacts":            func(r SummaryRow) sortKey { return num(float64(r.ActiveContacts)) },
	"primary_contact_name":       func(r SummaryRow) sortKey { return optStr(r.PrimaryContactName) },
	"last_contact_update":        func(r SummaryRow) sortKey { return optTimeKey(r.LastContactUpdate) },
	"total_interactions":         func(r SummaryRow) sortKey { return num(float64(r.TotalInteractions)) },
	"interactions_last_30_days":  func(r SummaryRow) sortKey { return num(float64(r.InteractionsLast30Days)) },
	"interactions_last_90_days":  func(r SummaryRow) sortKey { return num(float64(r.InteractionsLast90Days)) },
	"last_interaction_date":      func(r SummaryRow) sortKey { return optTimeKey(r.LastInteractionDate) },
	"next_follow_up_date":        func(r SummaryRow) sortKey { return optTimeKey(r.NextFollowUpDate) },
	"avg_interaction_rating":     func(r SummaryRow) sortKey { return optNum(r.AvgInteractionRating) },
	"positive_interaction_count": func(r SummaryRow) sortKey { return num(float64(r.PositiveInteractionCount)) },
	"follow_ups_required":        func(r SummaryRow) sortKey { return num(float64(r.FollowUpsRequired)) },
	"total_opportunities":        func(r SummaryRow) sortKey { return num(float64(r.TotalOpportunities)) },
	"active_opportunities":       func(r SummaryRow) sortKey { return num(float64(r.ActiveOpportunities)) },
	"won_opportunities":          func(r SummaryRow) sortKey { return num(float64(r.WonOpportunities)) },
	"opportunities_last_30_days": func(r SummaryRow) sortKey { return num(float64(r.OpportunitiesLast30Days)) },
	"latest_opportunity_stage":   func(r SummaryRow) sortKey { return optStr(r.LatestOpportunityStage) },
	"latest_opportunity_date":    func(r SummaryRow) sortKey { return optTimeKey(r.LatestOpportunityDate) },
	"avg_probability_percent":    func(r SummaryRow) sortKey { return optNum(r.AvgProbabilityPercent) },
	"product_count":              func(r SummaryRow) sortKey { return num(float64(r.ProductCount)) },
	"active_product_count":       func(r SummaryRow) sortKey { return num(float64(r.ActiveProductCount)) },
	"primary_product_category":   func(r SummaryRow) sortKey { return optStr(r.PrimaryProductCategory) },
	"distributor_name":           func(r SummaryRow) sortKey { return optStr(r.DistributorName) },
	"last_activity_date":         func(r SummaryRow) sortKey { return timeKey(r.LastActivityDate) },
	"activity_status":            func(r SummaryRow) sortKey { return str(string(r.ActivityStatus)) },
	"engagement_score":           func(r SummaryRow) sortKey { return num(r.EngagementScore) },
	"summary_generated_at":       func(r SummaryRow) sortKey { return timeKey(r.SummaryGeneratedAt) },
}

// SortFields returns the sortable field names in alphabetical order.
func SortFields() []string {
	names := make([]string, 0, len(sortFields))
	for name := range sortFields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsSortField reports whether name can be used as a sort field.
func IsSortField(name string) bool {
	_, ok := sortFields[name]
	return ok
}

// Normalize fills defaults and rejects malformed input. Values are never
// silently coerced: an out-of-range page size is an error, not a clamp.
// A zero page or limit means "not given" and selects the default; callers
// that receive user input must reject an explicit zero before this point.
func (p QueryParams) Normalize() (QueryParams, error) {
	p.Search = strings.TrimSpace(p.Search)
	p.ProductCategory = strings.TrimSpace(p.ProductCategory)

	if p.SortBy == "" {
		p.SortBy = DefaultSortField
	}
	if !IsSortField(p.SortBy) {
		return p, apperr.Validation(fmt.Sprintf("unknown sort field %q", p.SortBy)).
			WithDetails(map[string]any{"allowed": SortFields()})
	}

	p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
	if p.SortOrder == "" {
		p.SortOrder = DefaultSortOrder
	}
	if p.SortOrder != "asc" && p.SortOrder != "desc" {
		return p, apperr.Validation(fmt.Sprintf("invalid sort order %q", p.SortOrder))
	}

	if p.Page < 0 {
		return p, apperr.Validation("page must be 1 or greater")
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit < 0 || p.Limit > MaxPageSize {
		return p, apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", MaxPageSize))
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageSize
	}

	for _, bound := range []*float64{p.MinScore, p.MaxScore} {
		if bound != nil && (math.IsNaN(*bound) || *bound < 0 || *bound > 100) {
			return p, apperr.Validation("engagement score range must be within 0 and 100")
		}
	}
	if p.MinScore != nil && p.MaxScore != nil && *p.MinScore > *p.MaxScore {
		return p, apperr.Validation("engagement score min must not exceed max")
	}

	if len(p.Statuses) > 0 {
		statuses := make([]ActivityStatus, 0, len(p.Statuses))
		for _, status := range p.Statuses {
			parsed, ok := ParseActivityStatus(string(status))
			if !ok {
				return p, apperr.Validation(fmt.Sprintf("unknown activity status %q", status))
			}
			if !slices.Contains(statuses, parsed) {
				statuses = append(statuses, parsed)
			}
		}
		p.Statuses = statuses
	}

	return p, nil
}

// Matches applies the filter part of the params to a single row.
func (p QueryParams) Matches(row SummaryRow) bool {
	if p.Search != "" {
		needle := strings.ToLower(p.Search)
		inName := strings.Contains(strings.ToLower(row.PrincipalName), needle)
		inContact := row.PrimaryContactName != nil && strings.Contains(strings.ToLower(*row.PrimaryContactName), needle)
		if !inName && !inContact {
			return false
		}
	}
	if len(p.Statuses) > 0 && !slices.Contains(p.Statuses, row.ActivityStatus) {
		return false
	}
	if p.MinScore != nil && row.EngagementScore < *p.MinScore {
		return false
	}
	if p.MaxScore != nil && row.EngagementScore > *p.MaxScore {
		return false
	}
	if p.HasOpportunities != nil && (row.TotalOpportunities > 0) != *p.HasOpportunities {
		return false
	}
	if p.DistributorID != nil && (row.DistributorID == nil || *row.DistributorID != *p.DistributorID) {
		return false
	}
	if p.ProductCategory != "" && !slices.Contains(row.ProductCategories, p.ProductCategory) {
		return false
	}
	return true
}

// SortRows orders rows in place by the params' sort field. Nulls always
// sort last; equal keys fall back to principal id ascending.
func (p QueryParams) SortRows(rows []SummaryRow) {
	key := sortFields[p.SortBy]
	if key == nil {
		key = sortFields[DefaultSortField]
	}
	desc := p.SortOrder == "desc"

	slices.SortStableFunc(rows, func(a, b SummaryRow) int {
		ka, kb := key(a), key(b)
		switch {
		case ka.null && !kb.null:
			return 1
		case !ka.null && kb.null:
			return -1
		}
		c := cmp.Compare(ka.n, kb.n)
		if c == 0 {
			c = cmp.Compare(ka.t, kb.t)
		}
		if c == 0 {
			c = strings.Compare(ka.s, kb.s)
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return bytes.Compare(a.PrincipalID[:], b.PrincipalID[:])
	})
}

// ApplyQuery filters, sorts, digests and pages rows in memory.
func ApplyQuery(rows []SummaryRow, params QueryParams) (Page, error) {
	p, err := params.Normalize()
	if err != nil {
		return Page{}, err
	}

	filtered := make([]SummaryRow, 0, len(rows))
	for _, row := range rows {
		if p.Matches(row) {
			filtered = append(filtered, row)
		}
	}
	p.SortRows(filtered)

	pagination := NewPagination(p.Page, p.Limit, len(filtered))
	start := (p.Page - 1) * p.Limit
	end := start + p.Limit
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	data := make([]SummaryRow, end-start)
	copy(data, filtered[start:end])

	return Page{
		Data:             data,
		Pagination:       pagination,
		AnalyticsSummary: Digest(filtered),
	}, nil
}

// Digest computes the analytics summary over a filtered row set.
func Digest(rows []SummaryRow) AnalyticsDigest {
	d := AnalyticsDigest{TotalCount: len(rows)}
	if len(rows) == 0 {
		return d
	}
	var scoreSum float64
	for _, r := range rows {
		if r.ActivityStatus == ActivityActive {
			d.ActiveCount++
		}
		scoreSum += r.EngagementScore
		d.TotalInteractions += r.TotalInteractions
		d.TotalOpportunities += r.TotalOpportunities
	}
	d.AvgEngagementScore = round2(scoreSum / float64(len(rows)))
	return d
}

// NewPagination derives page metadata. An empty result has no previous or
// next page regardless of the requested page.
func NewPagination(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	p.HasNext = page < p.TotalPages
	p.HasPrevious = total > 0 && page > 1
	return p
}
