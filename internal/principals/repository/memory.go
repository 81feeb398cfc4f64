package repository

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
)

type summaryMap = map[uuid.UUID]domain.SummaryRow

// MemoryStore keeps summaries in an immutable map swapped with an atomic
// pointer. Readers load the current version without locking; writers
// serialize on mu only while building the next version.
type MemoryStore struct {
	mu      sync.Mutex
	current atomic.Pointer[summaryMap]
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	empty := make(summaryMap)
	s.current.Store(&empty)
	return s
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) load() summaryMap {
	return *s.current.Load()
}

// mutate applies fn to a private copy of the current version and publishes it.
func (s *MemoryStore) mutate(fn func(next summaryMap) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.load())
	if !fn(next) {
		return false
	}
	s.current.Store(&next)
	return true
}

func (s *MemoryStore) Get(_ context.Context, principalID uuid.UUID) (domain.SummaryRow, error) {
	row, ok := s.load()[principalID]
	if !ok {
		return domain.SummaryRow{}, apperr.NotFound(summaryNotFoundMessage)
	}
	return cloneRow(row), nil
}

func (s *MemoryStore) Replace(_ context.Context, row domain.SummaryRow) (bool, error) {
	row = cloneRow(row)
	applied := s.mutate(func(next summaryMap) bool {
		if existing, ok := next[row.PrincipalID]; ok && !existing.SummaryGeneratedAt.Before(row.SummaryGeneratedAt) {
			return false
		}
		next[row.PrincipalID] = row
		return true
	})
	return applied, nil
}

func (s *MemoryStore) Delete(_ context.Context, principalID uuid.UUID) error {
	s.mutate(func(next summaryMap) bool {
		if _, ok := next[principalID]; !ok {
			return false
		}
		delete(next, principalID)
		return true
	})
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, keep []uuid.UUID) (int, error) {
	keepSet := make(map[uuid.UUID]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	var removed int
	s.mutate(func(next summaryMap) bool {
		for id := range next {
			if _, ok := keepSet[id]; !ok {
				delete(next, id)
				removed++
			}
		}
		return removed > 0
	})
	return removed, nil
}

func (s *MemoryStore) Query(_ context.Context, params domain.QueryParams) (domain.Page, error) {
	return domain.ApplyQuery(s.rows(), params)
}

func (s *MemoryStore) Stats(_ context.Context, topN int) (domain.SummaryStats, error) {
	return domain.ComputeStats(s.rows(), topN), nil
}

func (s *MemoryStore) All(_ context.Context) ([]domain.SummaryRow, error) {
	return s.rows(), nil
}

// rows returns a sorted deep copy of the current version.
func (s *MemoryStore) rows() []domain.SummaryRow {
	current := s.load()
	out := make([]domain.SummaryRow, 0, len(current))
	for _, row := range current {
		out = append(out, cloneRow(row))
	}
	slices.SortFunc(out, func(a, b domain.SummaryRow) int {
		return bytes.Compare(a.PrincipalID[:], b.PrincipalID[:])
	})
	return out
}

// cloneRow deep-copies every pointer and slice field, so neither the writer
// nor a reader can reach the stored version.
func cloneRow(row domain.SummaryRow) domain.SummaryRow {
	row.Industry = clonePtr(row.Industry)
	row.Size = clonePtr(row.Size)

	row.PrimaryContactName = clonePtr(row.PrimaryContactName)
	row.PrimaryContactEmail = clonePtr(row.PrimaryContactEmail)
	row.LastContactUpdate = clonePtr(row.LastContactUpdate)

	row.LastInteractionDate = clonePtr(row.LastInteractionDate)
	row.LastInteractionType = clonePtr(row.LastInteractionType)
	row.NextFollowUpDate = clonePtr(row.NextFollowUpDate)
	row.AvgInteractionRating = clonePtr(row.AvgInteractionRating)

	row.LatestOpportunityStage = clonePtr(row.LatestOpportunityStage)
	row.LatestOpportunityDate = clonePtr(row.LatestOpportunityDate)
	row.AvgProbabilityPercent = clonePtr(row.AvgProbabilityPercent)

	row.ProductCategories = slices.Clone(row.ProductCategories)
	if row.ProductCategories == nil {
		row.ProductCategories = []string{}
	}
	row.PrimaryProductCategory = clonePtr(row.PrimaryProductCategory)

	row.DistributorID = clonePtr(row.DistributorID)
	row.DistributorName = clonePtr(row.DistributorName)
	return row
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
