package domain

import (
	"fmt"
	"testing"

	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredRow(id byte, name string, score float64, status ActivityStatus) SummaryRow {
	return SummaryRow{
		PrincipalID:       fixedID(id),
		PrincipalName:     name,
		EngagementScore:   score,
		ActivityStatus:    status,
		ProductCategories: []string{},
		LastActivityDate:  testNow,
	}
}

// tenRows has scores 10..100. Even rows and the 70-point row are ACTIVE.
func tenRows() []SummaryRow {
	rows := make([]SummaryRow, 0, 10)
	for i := 1; i <= 10; i++ {
		status := ActivityStale
		if i%2 == 0 || i == 7 {
			status = ActivityActive
		}
		row := scoredRow(byte(i), fmt.Sprintf("Principal %02d", i), float64(i*10), status)
		row.TotalInteractions = i
		row.TotalOpportunities = i % 3
		rows = append(rows, row)
	}
	return rows
}

func TestApplyQueryActiveWithMinimumScore(t *testing.T) {
	minScore := 70.0
	page, err := ApplyQuery(tenRows(), QueryParams{
		Statuses: []ActivityStatus{ActivityActive},
		MinScore: &minScore,
	})
	require.NoError(t, err)

	require.Len(t, page.Data, 3)
	assert.Equal(t, 100.0, page.Data[0].EngagementScore)
	assert.Equal(t, 80.0, page.Data[1].EngagementScore)
	assert.Equal(t, 70.0, page.Data[2].EngagementScore)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 3, page.AnalyticsSummary.TotalCount)
	assert.Equal(t, 3, page.AnalyticsSummary.ActiveCount)
	assert.Equal(t, 83.33, page.AnalyticsSummary.AvgEngagementScore)
}

func TestApplyQueryPagesCoverFilteredSetExactlyOnce(t *testing.T) {
	rows := tenRows()
	params := QueryParams{SortBy: "principal_name", SortOrder: "asc", Limit: 3}

	seen := map[uuid.UUID]int{}
	var pages int
	for pageNo := 1; ; pageNo++ {
		params.Page = pageNo
		page, err := ApplyQuery(rows, params)
		require.NoError(t, err)
		assert.Equal(t, len(rows), page.Pagination.Total)
		assert.Equal(t, page.Pagination.Total, page.AnalyticsSummary.TotalCount)
		for _, r := range page.Data {
			seen[r.PrincipalID]++
		}
		pages++
		if !page.Pagination.HasNext {
			assert.Equal(t, 4, page.Pagination.TotalPages)
			break
		}
	}

	assert.Equal(t, 4, pages)
	assert.Len(t, seen, len(rows))
	for id, n := range seen {
		assert.Equal(t, 1, n, "principal %s appeared on %d pages", id, n)
	}
}

func TestApplyQueryDigestCoversWholeFilteredSet(t *testing.T) {
	page, err := ApplyQuery(tenRows(), QueryParams{Limit: 2})
	require.NoError(t, err)

	assert.Len(t, page.Data, 2)
	assert.Equal(t, 10, page.AnalyticsSummary.TotalCount)
	assert.Equal(t, 6, page.AnalyticsSummary.ActiveCount)
	assert.Equal(t, 55.0, page.AnalyticsSummary.AvgEngagementScore)
	assert.Equal(t, 55, page.AnalyticsSummary.TotalInteractions)
	assert.Equal(t, 10, page.AnalyticsSummary.TotalOpportunities)
}

func TestApplyQueryEmptyResult(t *testing.T) {
	page, err := ApplyQuery(tenRows(), QueryParams{Search: "no such principal", Page: 3})
	require.NoError(t, err)

	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, 0, page.Pagination.Total)
	assert.Equal(t, 0, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrevious)
	assert.Equal(t, AnalyticsDigest{}, page.AnalyticsSummary)
}

func TestApplyQueryPageBeyondEndIsEmpty(t *testing.T) {
	page, err := ApplyQuery(tenRows(), QueryParams{Page: 5, Limit: 5})
	require.NoError(t, err)

	assert.Empty(t, page.Data)
	assert.Equal(t, 10, page.Pagination.Total)
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrevious)
}

func TestApplyQueryFilters(t *testing.T) {
	distributor := uuid.New()
	contact := "Maria Jansen"

	rows := tenRows()
	rows[0].PrimaryContactName = &contact
	rows[1].DistributorID = &distributor
	rows[2].ProductCategories = []string{"Dairy", "Sauces"}

	yes := true
	no := false
	cases := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"search by name is case-insensitive", QueryParams{Search: "PRINCIPAL 1"}, 1},
		{"search matches primary contact", QueryParams{Search: "jansen"}, 1},
		{"multiple statuses", QueryParams{Statuses: []ActivityStatus{ActivityActive, ActivityStale}}, 10},
		{"score range inclusive", QueryParams{MinScore: ptr(30.0), MaxScore: ptr(50.0)}, 3},
		{"has opportunities", QueryParams{HasOpportunities: &yes}, 7},
		{"without opportunities", QueryParams{HasOpportunities: &no}, 3},
		{"distributor", QueryParams{DistributorID: &distributor}, 1},
		{"product category exact", QueryParams{ProductCategory: "Sauces"}, 1},
		{"product category partial does not match", QueryParams{ProductCategory: "Sauce"}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := ApplyQuery(rows, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, page.Pagination.Total)
		})
	}
}

func TestApplyQueryRejectsInvalidParams(t *testing.T) {
	cases := []struct {
		name   string
		params QueryParams
	}{
		{"unknown sort field", QueryParams{SortBy: "password"}},
		{"bad sort order", QueryParams{SortOrder: "sideways"}},
		{"negative page", QueryParams{Page: -1}},
		{"limit too large", QueryParams{Limit: MaxPageSize + 1}},
		{"negative limit", QueryParams{Limit: -5}},
		{"score below range", QueryParams{MinScore: ptr(-1.0)}},
		{"score above range", QueryParams{MaxScore: ptr(101.0)}},
		{"inverted range", QueryParams{MinScore: ptr(80.0), MaxScore: ptr(20.0)}},
		{"unknown status", QueryParams{Statuses: []ActivityStatus{"BUSY"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ApplyQuery(tenRows(), tc.params)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "expected validation error, got %v", err)
		})
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	p, err := QueryParams{SortOrder: "ASC"}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, DefaultSortField, p.SortBy)
	assert.Equal(t, "asc", p.SortOrder)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.Limit)
}

func TestSortRowsNullsLastInBothDirections(t *testing.T) {
	rating := func(v float64) *float64 { return &v }

	rows := []SummaryRow{
		scoredRow(1, "a", 0, ActivityNone),
		scoredRow(2, "b", 0, ActivityNone),
		scoredRow(3, "c", 0, ActivityNone),
		scoredRow(4, "d", 0, ActivityNone),
	}
	rows[1].AvgInteractionRating = rating(4.5)
	rows[2].AvgInteractionRating = rating(2)

	ids := func(rs []SummaryRow) []byte {
		out := make([]byte, len(rs))
		for i, r := range rs {
			out[i] = r.PrincipalID[15]
		}
		return out
	}

	asc := QueryParams{SortBy: "avg_interaction_rating", SortOrder: "asc"}
	asc.SortRows(rows)
	assert.Equal(t, []byte{3, 2, 1, 4}, ids(rows))

	desc := QueryParams{SortBy: "avg_interaction_rating", SortOrder: "desc"}
	desc.SortRows(rows)
	assert.Equal(t, []byte{2, 3, 1, 4}, ids(rows))
}

func TestSortRowsTiesResolveByPrincipalID(t *testing.T) {
	rows := []SummaryRow{
		scoredRow(9, "x", 50, ActivityActive),
		scoredRow(2, "y", 50, ActivityActive),
		scoredRow(5, "z", 50, ActivityActive),
	}

	QueryParams{SortBy: "engagement_score", SortOrder: "desc"}.SortRows(rows)

	assert.Equal(t, fixedID(2), rows[0].PrincipalID)
	assert.Equal(t, fixedID(5), rows[1].PrincipalID)
	assert.Equal(t, fixedID(9), rows[2].PrincipalID)
}

func TestSortFieldsAreSortedAndKnown(t *testing.T) {
	fields := SortFields()
	require.NotEmpty(t, fields)
	assert.IsNonDecreasing(t, fields)
	for _, f := range fields {
		assert.True(t, IsSortField(f))
	}
	assert.False(t, IsSortField("principal_id; drop table"))
}
