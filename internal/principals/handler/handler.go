package handler

import (
	"context"
	"net/http"

	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/internal/principals/transport"
	"principal_analytics_backend/platform/httpkit"
	"principal_analytics_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SummaryReader serves summary reads.
type SummaryReader interface {
	List(ctx context.Context, params domain.QueryParams) (domain.Page, error)
	Get(ctx context.Context, principalID uuid.UUID) (domain.SummaryRow, error)
}

// Refresher runs refreshes and computes dashboard stats.
type Refresher interface {
	Refresh(ctx context.Context, principalID uuid.UUID) (service.Outcome, error)
	RefreshAll(ctx context.Context) (service.RefreshReport, error)
	Stats(ctx context.Context, topN int) (domain.SummaryStats, error)
}

// ChangeRecorder persists an upstream change for out-of-process refreshes.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, entity, operation string) error
}

// Handler handles HTTP requests for principal analytics.
type Handler struct {
	reader    SummaryReader
	refresher Refresher
	changes   ChangeRecorder
	bus       events.Bus
	val       *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid principal ID"
)

// New creates a new principal analytics handler. changes may be nil, in which
// case reported changes only reach this process.
func New(reader SummaryReader, refresher Refresher, changes ChangeRecorder, bus events.Bus, val *validator.Validator) *Handler {
	return &Handler{reader: reader, refresher: refresher, changes: changes, bus: bus, val: val}
}

// ListSummaries filters, sorts and pages principal summaries.
// GET /api/v1/principal-analytics/summaries
func (h *Handler) ListSummaries(c *gin.Context) {
	var req transport.ListSummariesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	params, err := req.ToParams()
	if httpkit.HandleError(c, err) {
		return
	}

	page, err := h.reader.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, page)
}

// GetSummary returns one principal's summary.
// GET /api/v1/principal-analytics/summaries/:id
func (h *Handler) GetSummary(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	row, err := h.reader.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, row)
}

// Stats returns dashboard KPIs.
// GET /api/v1/principal-analytics/stats
func (h *Handler) Stats(c *gin.Context) {
	var req transport.StatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	stats, err := h.refresher.Stats(c.Request.Context(), req.Top)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

// RefreshAll recomputes every principal summary.
// POST /api/v1/principal-analytics/refresh
func (h *Handler) RefreshAll(c *gin.Context) {
	report, err := h.refresher.RefreshAll(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RefreshResponse{
		Attempted: report.Attempted,
		Refreshed: report.Refreshed,
		Removed:   report.Removed,
		Failed:    report.Failed,
	})
}

// RefreshPrincipal recomputes one principal summary.
// POST /api/v1/principal-analytics/refresh/:id
func (h *Handler) RefreshPrincipal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	outcome, err := h.refresher.Refresh(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PrincipalRefreshResponse{PrincipalID: id, Outcome: string(outcome)})
}

// ReportChange accepts an upstream mutation notice and schedules a refresh.
// POST /api/v1/principal-analytics/changes
func (h *Handler) ReportChange(c *gin.Context) {
	var req transport.ChangeNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	change, err := events.NewUpstreamChanged(req.Entity, req.Operation)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if h.changes != nil {
		if err := h.changes.RecordChange(c.Request.Context(), change.Entity, change.Operation); err != nil {
			httpkit.HandleError(c, err)
			return
		}
	}

	h.bus.Publish(c.Request.Context(), change)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// RegisterRoutes mounts principal analytics routes. refreshLimit guards the
// manual refresh endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, refreshLimit gin.HandlerFunc) {
	rg.GET("/summaries", h.ListSummaries)
	rg.GET("/summaries/:id", h.GetSummary)
	rg.GET("/stats", h.Stats)
	rg.POST("/changes", h.ReportChange)

	refresh := rg.Group("/refresh")
	if refreshLimit != nil {
		refresh.Use(refreshLimit)
	}
	refresh.POST("", h.RefreshAll)
	refresh.POST("/:id", h.RefreshPrincipal)
}
