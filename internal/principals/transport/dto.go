package transport

import (
	"strings"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
)

// ListSummariesRequest carries summary list filters from the query string.
// statuses is a comma-separated list of activity statuses.
type ListSummariesRequest struct {
	Search           string   `form:"search" validate:"omitempty,max=200"`
	Statuses         string   `form:"statuses" validate:"omitempty,max=100"`
	MinScore         *float64 `form:"min_engagement_score" validate:"omitempty,gte=0,lte=100"`
	MaxScore         *float64 `form:"max_engagement_score" validate:"omitempty,gte=0,lte=100"`
	HasOpportunities *bool    `form:"has_opportunities"`
	DistributorID    string   `form:"distributor_id" validate:"omitempty,uuid"`
	ProductCategory  string   `form:"product_category" validate:"omitempty,max=100"`
	SortBy           string   `form:"sort_by" validate:"omitempty,max=64"`
	SortOrder        string   `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
	Page             *int     `form:"page" validate:"omitempty,min=1"`
	Limit            *int     `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ToParams converts the request into domain query params. Range and enum
// checks happen in domain.QueryParams.Normalize. Only an absent page or
// limit falls back to the defaults; an explicit 0 fails validation above.
func (r ListSummariesRequest) ToParams() (domain.QueryParams, error) {
	params := domain.QueryParams{
		Search:           r.Search,
		MinScore:         r.MinScore,
		MaxScore:         r.MaxScore,
		HasOpportunities: r.HasOpportunities,
		ProductCategory:  r.ProductCategory,
		SortBy:           r.SortBy,
		SortOrder:        r.SortOrder,
	}
	if r.Page != nil {
		params.Page = *r.Page
	}
	if r.Limit != nil {
		params.Limit = *r.Limit
	}

	for _, raw := range strings.Split(r.Statuses, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		params.Statuses = append(params.Statuses, domain.ActivityStatus(raw))
	}

	if r.DistributorID != "" {
		id, err := uuid.Parse(r.DistributorID)
		if err != nil {
			return domain.QueryParams{}, apperr.Validation("distributor_id must be a uuid")
		}
		params.DistributorID = &id
	}

	return params, nil
}

// StatsRequest selects how many top performers to return.
type StatsRequest struct {
	Top int `form:"top" validate:"omitempty,min=1,max=50"`
}

// ChangeNotification reports an upstream mutation.
type ChangeNotification struct {
	Entity    string `json:"entity" validate:"required,max=64"`
	Operation string `json:"operation" validate:"required,max=16"`
}

// RefreshResponse reports a manual refresh run.
type RefreshResponse struct {
	Attempted int `json:"attempted"`
	Refreshed int `json:"refreshed"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// PrincipalRefreshResponse reports a single-principal refresh.
type PrincipalRefreshResponse struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Outcome     string    `json:"outcome"`
}
