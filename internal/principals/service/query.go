package service

import (
	"context"
	"time"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/platform/apperr"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QueryService serves reads of the summary store. It never touches upstream.
type QueryService struct {
	store   repository.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewQueryService creates a query service. m may be nil.
func NewQueryService(store repository.Store, m *metrics.Metrics, log *logger.Logger) *QueryService {
	return &QueryService{store: store, metrics: m, log: log}
}

// List filters, sorts and pages summaries.
func (s *QueryService) List(ctx context.Context, params domain.QueryParams) (domain.Page, error) {
	ctx, span := tracer.Start(ctx, "principals.List")
	defer span.End()

	params, err := params.Normalize()
	if err != nil {
		return domain.Page{}, err
	}
	span.SetAttributes(
		attribute.String("sort_by", params.SortBy),
		attribute.Int("page", params.Page),
		attribute.Int("limit", params.Limit),
	)

	start := time.Now()
	page, err := s.store.Query(ctx, params)
	s.metrics.ObserveQuery("list", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query summaries failed")
		s.log.DatabaseError("query summaries", err)
		return domain.Page{}, apperr.Wrap(apperr.KindInternal, "query summaries", err)
	}
	return page, nil
}

// Get returns one principal's summary.
func (s *QueryService) Get(ctx context.Context, principalID uuid.UUID) (domain.SummaryRow, error) {
	ctx, span := tracer.Start(ctx, "principals.Get",
		trace.WithAttributes(attribute.String("principal_id", principalID.String())))
	defer span.End()

	start := time.Now()
	row, err := s.store.Get(ctx, principalID)
	s.metrics.ObserveQuery("get", time.Since(start))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.SummaryRow{}, err
		}
		span.RecordError(err)
		s.log.DatabaseError("get summary", err)
		return domain.SummaryRow{}, apperr.Wrap(apperr.KindInternal, "get summary", err)
	}
	return row, nil
}
