package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeReader struct {
	calls int
	err   error
	ids   []uuid.UUID
}

func (f *fakeReader) ListPrincipalIDs(context.Context) ([]uuid.UUID, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeReader) Snapshot(_ context.Context, id uuid.UUID) (domain.UpstreamSnapshot, bool, error) {
	f.calls++
	if f.err != nil {
		return domain.UpstreamSnapshot{}, false, f.err
	}
	return domain.UpstreamSnapshot{Principal: domain.Principal{ID: id}}, true, nil
}

func testSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  3,
		FailureRatio: 0.5,
		Interval:     time.Minute,
		OpenTimeout:  time.Minute,
	}
}

func TestBreakerReaderPassesThrough(t *testing.T) {
	id := uuid.New()
	next := &fakeReader{ids: []uuid.UUID{id}}
	r := NewBreakerReader(next, testSettings())

	ids, err := r.ListPrincipalIDs(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected ids=%v err=%v", ids, err)
	}

	snap, found, err := r.Snapshot(context.Background(), id)
	if err != nil || !found || snap.Principal.ID != id {
		t.Fatalf("unexpected snapshot=%+v found=%v err=%v", snap, found, err)
	}
}

func TestBreakerReaderOpensAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("connection refused")
	next := &fakeReader{err: boom}

	var transitions []string
	s := testSettings()
	s.OnStateChange = func(from, to string) { transitions = append(transitions, from+"->"+to) }
	r := NewBreakerReader(next, s)

	for i := 0; i < 3; i++ {
		if _, _, err := r.Snapshot(context.Background(), uuid.New()); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if r.State() != "open" {
		t.Fatalf("expected open breaker, got %s", r.State())
	}

	_, _, err := r.Snapshot(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error while open, got %v", err)
	}
	if next.calls != 3 {
		t.Fatalf("expected open breaker to skip upstream, got %d calls", next.calls)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestBreakerReaderIgnoresCancellation(t *testing.T) {
	next := &fakeReader{err: context.Canceled}
	r := NewBreakerReader(next, testSettings())

	for i := 0; i < 5; i++ {
		_, _ = r.ListPrincipalIDs(context.Background())
	}
	if r.State() != "closed" {
		t.Fatalf("expected cancellations to keep breaker closed, got %s", r.State())
	}
}
