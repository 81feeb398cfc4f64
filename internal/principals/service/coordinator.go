// Package service contains the refresh and query logic of the principal
// analytics engine.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/internal/principals/upstream"
	"principal_analytics_backend/platform/apperr"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRefreshTimeout     = 5 * time.Second
	defaultRefreshConcurrency = 8

	scopePrincipal = "principal"
	scopeAll       = "all"
)

var tracer = otel.Tracer("principal_analytics_backend/internal/principals")

// Outcome is the result of refreshing one principal.
type Outcome string

const (
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeRemoved   Outcome = "removed"
)

// RefreshReport summarizes a refresh run.
type RefreshReport struct {
	Attempted int `json:"attempted"`
	Refreshed int `json:"refreshed"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// StatsCache caches dashboard stats between refreshes. Generation changes on
// every Invalidate; Set is a no-op when generation is no longer current.
type StatsCache interface {
	Get(ctx context.Context, topN int) (domain.SummaryStats, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, generation int64, topN int, stats domain.SummaryStats) (bool, error)
	Invalidate(ctx context.Context) error
}

// Options tunes the coordinator. Zero values select defaults.
type Options struct {
	// Timeout bounds each per-principal refresh.
	Timeout time.Duration
	// Concurrency bounds parallel per-principal refreshes in RefreshAll.
	Concurrency int
	// Debounce delays a triggered refresh so bursts collapse into one run.
	Debounce time.Duration
	// Now overrides the clock. Tests use it to pin recompute time.
	Now func() time.Time
}

// Coordinator rebuilds summary rows from upstream state. It holds no lock
// across an upstream read and the following store write, and never retries
// on its own: a failed principal keeps its previous row until the next run.
type Coordinator struct {
	reader  upstream.Reader
	store   repository.Store
	bus     events.Bus
	cache   StatsCache
	metrics *metrics.Metrics
	log     *logger.Logger

	stamps  *stampSource
	opts    Options
	pending chan struct{}
}

// NewCoordinator wires a coordinator. bus, cache and m may be nil.
func NewCoordinator(reader upstream.Reader, store repository.Store, bus events.Bus, cache StatsCache, m *metrics.Metrics, log *logger.Logger, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRefreshTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultRefreshConcurrency
	}
	return &Coordinator{
		reader:  reader,
		store:   store,
		bus:     bus,
		cache:   cache,
		metrics: m,
		log:     log,
		stamps:  newStampSource(opts.Now),
		opts:    opts,
		pending: make(chan struct{}, 1),
	}
}

// Refresh recomputes one principal. A principal that no longer qualifies has
// its row removed. Failures leave the stored row untouched and are returned.
func (c *Coordinator) Refresh(ctx context.Context, principalID uuid.UUID) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "principals.Refresh",
		trace.WithAttributes(attribute.String("principal_id", principalID.String())))
	defer span.End()

	start := time.Now()
	outcome, err := c.refreshOne(ctx, principalID)
	c.metrics.ObserveRefresh(scopePrincipal, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return "", err
	}

	c.invalidateStats(ctx)
	if c.bus != nil {
		c.bus.Publish(ctx, events.PrincipalSummaryRefreshed{
			BaseEvent:   events.NewBaseEvent(),
			PrincipalID: principalID,
			Removed:     outcome == OutcomeRemoved,
		})
	}
	return outcome, nil
}

// RefreshAll recomputes every qualifying principal, skipping and logging
// individual failures, then prunes rows of principals that stopped
// qualifying. It only fails when the principal list itself cannot be read.
func (c *Coordinator) RefreshAll(ctx context.Context) (RefreshReport, error) {
	ctx, span := tracer.Start(ctx, "principals.RefreshAll")
	defer span.End()

	start := time.Now()

	listCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	ids, err := c.reader.ListPrincipalIDs(listCtx)
	cancel()
	if err != nil {
		c.metrics.IncUpstreamFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list principals failed")
		c.log.Warn("summary refresh skipped: principal list unavailable", "error", err)
		return RefreshReport{}, apperr.Wrap(kindFor(err), "list principals", err)
	}

	var refreshed, removed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			outcome, err := c.refreshOne(ctx, id)
			switch {
			case err != nil:
				failed.Add(1)
			case outcome == OutcomeRemoved:
				removed.Add(1)
			default:
				refreshed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	pruned, err := c.store.Prune(ctx, ids)
	if err != nil {
		c.log.DatabaseError("prune summaries", err)
	}
	c.metrics.AddRefreshOutcomes(metrics.OutcomeRemoved, pruned)

	report := RefreshReport{
		Attempted: len(ids),
		Refreshed: int(refreshed.Load()),
		Removed:   int(removed.Load()) + pruned,
		Failed:    int(failed.Load()),
	}
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("attempted", report.Attempted),
		attribute.Int("refreshed", report.Refreshed),
		attribute.Int("removed", report.Removed),
		attribute.Int("failed", report.Failed),
	)
	c.metrics.ObserveRefresh(scopeAll, elapsed)
	c.metrics.SetQualifyingPrincipals(report.Attempted)
	c.log.RefreshCompleted(report.Attempted, report.Refreshed, report.Removed, report.Failed, elapsed)

	c.invalidateStats(ctx)
	if c.bus != nil {
		c.bus.Publish(ctx, events.PrincipalSummariesRefreshed{
			BaseEvent: events.NewBaseEvent(),
			Attempted: report.Attempted,
			Refreshed: report.Refreshed,
			Removed:   report.Removed,
			Failed:    report.Failed,
			Duration:  elapsed,
		})
	}

	return report, nil
}

// refreshOne runs snapshot, aggregate, score and replace for one principal
// under the per-refresh timeout.
func (c *Coordinator) refreshOne(ctx context.Context, principalID uuid.UUID) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	snapshot, found, err := c.reader.Snapshot(ctx, principalID)
	if err != nil {
		c.metrics.IncUpstreamFailure()
		return c.fail(principalID, apperr.Wrap(kindFor(err), "read upstream snapshot", err))
	}

	if !found {
		if err := c.store.Delete(ctx, principalID); err != nil {
			c.log.DatabaseError("delete summary", err)
			return c.fail(principalID, apperr.Wrap(apperr.KindInternal, "delete summary", err))
		}
		c.metrics.IncRefreshOutcome(metrics.OutcomeRemoved)
		return OutcomeRemoved, nil
	}

	now := c.stamps.Next()
	row := domain.BuildSummary(snapshot.Principal, domain.Aggregate(snapshot, now), now)

	if _, err := c.store.Replace(ctx, row); err != nil {
		c.log.DatabaseError("replace summary", err)
		return c.fail(principalID, apperr.Wrap(apperr.KindInternal, "store summary", err))
	}

	c.metrics.IncRefreshOutcome(metrics.OutcomeRefreshed)
	return OutcomeRefreshed, nil
}

func (c *Coordinator) fail(principalID uuid.UUID, err *apperr.Error) (Outcome, error) {
	c.metrics.IncRefreshOutcome(metrics.OutcomeFailed)
	c.log.RefreshFailed(principalID.String(), err)
	return "", err.WithOp("refresh principal " + principalID.String())
}

// Trigger requests a full refresh from the Run loop. It never blocks; any
// number of calls before the loop picks the request up collapse into one run.
func (c *Coordinator) Trigger() {
	c.metrics.IncTrigger("event")
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Run serves Trigger requests until ctx is done. Each request waits for the
// debounce window, absorbs the triggers that arrived meanwhile, then runs
// RefreshAll once. Triggers that arrive during a run schedule one more run.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.pending:
		}

		if c.opts.Debounce > 0 {
			timer := time.NewTimer(c.opts.Debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			select {
			case <-c.pending:
			default:
			}
		}

		if _, err := c.RefreshAll(ctx); err != nil {
			c.log.Warn("triggered summary refresh failed", "error", err)
		}
	}
}

// Stats returns the dashboard KPIs, served from cache when possible.
func (c *Coordinator) Stats(ctx context.Context, topN int) (domain.SummaryStats, error) {
	ctx, span := tracer.Start(ctx, "principals.Stats")
	defer span.End()

	start := time.Now()
	defer func() { c.metrics.ObserveQuery("stats", time.Since(start)) }()

	topN = domain.NormalizeTopN(topN)

	// The generation is read before the store so a refresh finishing while
	// stats are computed makes the write below a no-op.
	cacheable := false
	var generation int64
	if c.cache != nil {
		stats, ok, err := c.cache.Get(ctx, topN)
		if err != nil {
			c.log.Warn("stats cache read failed", "error", err)
		}
		c.metrics.IncCacheLookup(ok)
		if ok {
			return stats, nil
		}

		generation, err = c.cache.Generation(ctx)
		if err != nil {
			c.log.Warn("stats cache generation read failed", "error", err)
		} else {
			cacheable = true
		}
	}

	stats, err := c.store.Stats(ctx, topN)
	if err != nil {
		span.RecordError(err)
		return domain.SummaryStats{}, apperr.Wrap(apperr.KindInternal, "compute summary stats", err)
	}

	if cacheable {
		stored, err := c.cache.Set(ctx, generation, topN, stats)
		if err != nil {
			c.log.Warn("stats cache write failed", "error", err)
		} else if !stored {
			c.log.Debug("stats cache write skipped after concurrent refresh")
		}
	}
	return stats, nil
}

func (c *Coordinator) invalidateStats(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("stats cache invalidation failed", "error", err)
	}
}

// kindFor keeps an Unavailable classification from the breaker and treats
// everything else on the refresh path as internal.
func kindFor(err error) apperr.Kind {
	if apperr.Is(err, apperr.KindUnavailable) {
		return apperr.KindUnavailable
	}
	return apperr.KindInternal
}
