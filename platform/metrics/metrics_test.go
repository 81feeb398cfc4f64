package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewUsesPrivateRegistry(t *testing.T) {
	a := New()
	b := New()
	if a.Registry == b.Registry {
		t.Fatal("expected each Metrics to own its registry")
	}
}

func TestRefreshOutcomeCounter(t *testing.T) {
	m := New()
	m.IncRefreshOutcome(OutcomeRefreshed)
	m.IncRefreshOutcome(OutcomeRefreshed)
	m.IncRefreshOutcome(OutcomeFailed)
	m.AddRefreshOutcomes(OutcomeRemoved, 3)
	m.AddRefreshOutcomes(OutcomeRemoved, 0)

	if got := testutil.ToFloat64(m.refreshOutcomes.WithLabelValues(OutcomeRefreshed)); got != 2 {
		t.Fatalf("expected 2 refreshed, got %v", got)
	}
	if got := testutil.ToFloat64(m.refreshOutcomes.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Fatalf("expected 1 failed, got %v", got)
	}
	if got := testutil.ToFloat64(m.refreshOutcomes.WithLabelValues(OutcomeRemoved)); got != 3 {
		t.Fatalf("expected 3 removed, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveRefresh("all", time.Second)
	m.IncRefreshOutcome(OutcomeRemoved)
	m.ObserveQuery("list", time.Millisecond)
	m.SetQualifyingPrincipals(3)
	m.IncTrigger("event")
	m.IncCacheLookup(true)
	m.IncUpstreamFailure()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetQualifyingPrincipals(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "principal_analytics_qualifying_principals 42") {
		t.Fatalf("expected gauge in output, got:\n%s", rec.Body.String())
	}
}
