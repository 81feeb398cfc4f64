package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatsEmptyStore(t *testing.T) {
	stats := ComputeStats(nil, 0)

	assert.Equal(t, 0, stats.TotalPrincipals)
	assert.Equal(t, 0.0, stats.AverageEngagementScore)
	assert.NotNil(t, stats.TopPerformers)
	assert.Empty(t, stats.TopPerformers)
}

func TestComputeStatsCountsAndRanking(t *testing.T) {
	rows := tenRows()
	rows[0].ProductCount = 4
	rows[1].ProductCount = 2

	stats := ComputeStats(rows, 3)

	assert.Equal(t, 10, stats.TotalPrincipals)
	assert.Equal(t, 6, stats.ActivePrincipals)
	assert.Equal(t, 2, stats.PrincipalsWithProducts)
	assert.Equal(t, 7, stats.PrincipalsWithOpportunities)
	assert.Equal(t, 0.6, stats.AverageProductsPerPrincipal)
	assert.Equal(t, 55.0, stats.AverageEngagementScore)

	require.Len(t, stats.TopPerformers, 3)
	assert.Equal(t, 100.0, stats.TopPerformers[0].EngagementScore)
	assert.Equal(t, 90.0, stats.TopPerformers[1].EngagementScore)
	assert.Equal(t, 80.0, stats.TopPerformers[2].EngagementScore)
	assert.Equal(t, "Principal 10", stats.TopPerformers[0].PrincipalName)
}

func TestNormalizeTopN(t *testing.T) {
	assert.Equal(t, DefaultTopPerformers, NormalizeTopN(0))
	assert.Equal(t, DefaultTopPerformers, NormalizeTopN(-3))
	assert.Equal(t, 7, NormalizeTopN(7))
	assert.Equal(t, MaxTopPerformers, NormalizeTopN(MaxTopPerformers+10))
}
