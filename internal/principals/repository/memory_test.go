package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func summary(id uuid.UUID, score float64, generated time.Time) domain.SummaryRow {
	return domain.SummaryRow{
		PrincipalID:        id,
		PrincipalName:      "Principal " + id.String()[:4],
		EngagementScore:    score,
		ActivityStatus:     domain.ActivityActive,
		ProductCategories:  []string{"Dairy"},
		SummaryGeneratedAt: generated,
	}
}

func TestMemoryStoreGetMissingIsNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMemoryStoreReplaceIsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()

	applied, err := store.Replace(ctx, summary(id, 40, baseTime))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.Replace(ctx, summary(id, 10, baseTime.Add(-time.Second)))
	require.NoError(t, err)
	assert.False(t, applied, "older generation must not overwrite")

	applied, err = store.Replace(ctx, summary(id, 10, baseTime))
	require.NoError(t, err)
	assert.False(t, applied, "equal generation must not overwrite")

	applied, err = store.Replace(ctx, summary(id, 55, baseTime.Add(time.Second)))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 55.0, got.EngagementScore)
}

func TestMemoryStoreRowsAreDetachedFromCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()

	row := summary(id, 40, baseTime)
	_, err := store.Replace(ctx, row)
	require.NoError(t, err)
	row.ProductCategories[0] = "Mutated"

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	got.ProductCategories[0] = "Also mutated"

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dairy"}, again.ProductCategories)
}

func TestMemoryStorePointerFieldsAreDetached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()

	industry, contact := "Food", "Ada Lovelace"
	lastInteraction := baseTime.Add(-time.Hour)
	rating := 4.5
	distributor := uuid.New()

	row := summary(id, 40, baseTime)
	row.Industry = &industry
	row.PrimaryContactName = &contact
	row.LastInteractionDate = &lastInteraction
	row.AvgInteractionRating = &rating
	row.DistributorID = &distributor
	_, err := store.Replace(ctx, row)
	require.NoError(t, err)
	industry = "Changed by writer"

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	*got.Industry = "Changed by reader"
	*got.PrimaryContactName = "Changed by reader"
	*got.LastInteractionDate = baseTime
	*got.AvgInteractionRating = 1
	*got.DistributorID = uuid.Nil

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Food", *again.Industry)
	assert.Equal(t, "Ada Lovelace", *again.PrimaryContactName)
	assert.Equal(t, baseTime.Add(-time.Hour), *again.LastInteractionDate)
	assert.Equal(t, 4.5, *again.AvgInteractionRating)
	assert.Equal(t, distributor, *again.DistributorID)
	assert.Nil(t, again.Size)
}

func TestMemoryStorePruneAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	keep, demoted, deleted := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{keep, demoted, deleted} {
		_, err := store.Replace(ctx, summary(id, 50, baseTime))
		require.NoError(t, err)
	}

	require.NoError(t, store.Delete(ctx, deleted))
	require.NoError(t, store.Delete(ctx, deleted), "deleting a missing row is not an error")

	removed, err := store.Prune(ctx, []uuid.UUID{keep})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0].PrincipalID)

	page, err := store.Query(ctx, domain.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestMemoryStoreConcurrentReadersNeverSeePartialRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()
	_, err := store.Replace(ctx, summary(id, 0, baseTime))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			row := summary(id, float64(i%100), baseTime.Add(time.Duration(i)*time.Microsecond))
			row.TotalInteractions = i % 100
			_, _ = store.Replace(ctx, row)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			got, err := store.Get(ctx, id)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if float64(got.TotalInteractions) != got.EngagementScore {
				t.Errorf("observed torn row: interactions=%d score=%v", got.TotalInteractions, got.EngagementScore)
				return
			}
		}
	}()
	wg.Wait()
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i, score := range []float64{20, 80, 50} {
		row := summary(uuid.New(), score, baseTime)
		row.ProductCount = i
		_, err := store.Replace(ctx, row)
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPrincipals)
	assert.Equal(t, 50.0, stats.AverageEngagementScore)
	assert.Equal(t, 1.0, stats.AverageProductsPerPrincipal)
	require.Len(t, stats.TopPerformers, 2)
	assert.Equal(t, 80.0, stats.TopPerformers[0].EngagementScore)
}
