package upstream

import (
	"context"
	"errors"
	"time"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker around upstream reads.
type BreakerSettings struct {
	// MinRequests is the number of reads in a window before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// Interval resets the closed-state counters.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// OnStateChange is called on every transition when set.
	OnStateChange func(from, to string)
}

// DefaultBreakerSettings returns defaults sized for a full refresh cycle.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  5,
		FailureRatio: 0.6,
		Interval:     30 * time.Second,
		OpenTimeout:  10 * time.Second,
	}
}

// BreakerReader fails fast once upstream reads keep failing, so a broken
// database is not hammered once per principal.
type BreakerReader struct {
	next Reader
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerReader wraps next in a circuit breaker.
func NewBreakerReader(next Reader, s BreakerSettings) *BreakerReader {
	settings := gobreaker.Settings{
		Name:        "upstream-reader",
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		// A cancelled caller says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if s.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			s.OnStateChange(from.String(), to.String())
		}
	}
	return &BreakerReader{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Compile-time check that BreakerReader implements Reader.
var _ Reader = (*BreakerReader)(nil)

// State reports the breaker state ("closed", "half-open" or "open").
func (b *BreakerReader) State() string {
	return b.cb.State().String()
}

func (b *BreakerReader) ListPrincipalIDs(ctx context.Context) ([]uuid.UUID, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ListPrincipalIDs(ctx)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return res.([]uuid.UUID), nil
}

type snapshotResult struct {
	snapshot domain.UpstreamSnapshot
	found    bool
}

func (b *BreakerReader) Snapshot(ctx context.Context, principalID uuid.UUID) (domain.UpstreamSnapshot, bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		snapshot, found, err := b.next.Snapshot(ctx, principalID)
		if err != nil {
			return nil, err
		}
		return snapshotResult{snapshot: snapshot, found: found}, nil
	})
	if err != nil {
		return domain.UpstreamSnapshot{}, false, translateBreakerErr(err)
	}
	out := res.(snapshotResult)
	return out.snapshot, out.found, nil
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.KindUnavailable, "upstream store temporarily unavailable", err)
	}
	return err
}
