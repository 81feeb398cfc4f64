// Package principals provides the principal activity analytics module: it
// keeps one derived summary row per principal in step with upstream CRM data
// and serves filtered dashboard queries over those rows.
package principals

import (
	"context"

	"principal_analytics_backend/internal/changefeed"
	"principal_analytics_backend/internal/events"
	apphttp "principal_analytics_backend/internal/http"
	"principal_analytics_backend/internal/principals/handler"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/internal/principals/upstream"
	"principal_analytics_backend/platform/config"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/metrics"
	"principal_analytics_backend/platform/validator"
)

// Module is the principal analytics bounded context implementing http.Module.
type Module struct {
	handler     *handler.Handler
	coordinator *service.Coordinator
	query       *service.QueryService
	dispatcher  *changefeed.Dispatcher
}

// Deps are the collaborators the module is assembled from. Cache, Changes and
// Metrics may be nil.
type Deps struct {
	Reader  upstream.Reader
	Store   repository.Store
	Cache   service.StatsCache
	Changes *changefeed.Recorder
	Bus     events.Bus
	Metrics *metrics.Metrics
	Val     *validator.Validator
	Config  config.AnalyticsConfig
	Log     *logger.Logger
}

// NewModule creates and initializes the module with all its dependencies.
func NewModule(d Deps) *Module {
	coordinator := service.NewCoordinator(d.Reader, d.Store, d.Bus, d.Cache, d.Metrics, d.Log, service.Options{
		Timeout:     d.Config.GetRefreshTimeout(),
		Concurrency: d.Config.GetRefreshConcurrency(),
		Debounce:    d.Config.GetRefreshDebounce(),
	})
	query := service.NewQueryService(d.Store, d.Metrics, d.Log)

	var changes handler.ChangeRecorder
	if d.Changes != nil {
		changes = d.Changes
	}

	return &Module{
		handler:     handler.New(query, coordinator, changes, d.Bus, d.Val),
		coordinator: coordinator,
		query:       query,
		dispatcher:  changefeed.NewDispatcher(coordinator, d.Log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "principal-analytics"
}

// Coordinator returns the refresh coordinator for external use.
func (m *Module) Coordinator() *service.Coordinator {
	return m.coordinator
}

// QueryService returns the read side for external use.
func (m *Module) QueryService() *service.QueryService {
	return m.query
}

// RegisterRoutes mounts principal analytics routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/principal-analytics")
	limit := ctx.RefreshRateLimiter
	if limit == nil {
		m.handler.RegisterRoutes(group, nil)
		return
	}
	m.handler.RegisterRoutes(group, limit.RateLimit())
}

// RegisterHandlers subscribes the change dispatcher to upstream change events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.dispatcher.RegisterHandlers(bus)
}

// Run serves event-driven refresh requests until ctx is done.
func (m *Module) Run(ctx context.Context) {
	m.coordinator.Run(ctx)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
