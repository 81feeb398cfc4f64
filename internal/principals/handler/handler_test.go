package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/platform/apperr"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	report  service.RefreshReport
	outcome service.Outcome
	err     error
	topN    int
}

func (f *fakeRefresher) Refresh(context.Context, uuid.UUID) (service.Outcome, error) {
	return f.outcome, f.err
}

func (f *fakeRefresher) RefreshAll(context.Context) (service.RefreshReport, error) {
	return f.report, f.err
}

func (f *fakeRefresher) Stats(_ context.Context, topN int) (domain.SummaryStats, error) {
	f.topN = topN
	return domain.SummaryStats{TotalPrincipals: 1, TopPerformers: []domain.TopPerformer{}}, f.err
}

type fakeChanges struct {
	recorded []string
	err      error
}

func (f *fakeChanges) RecordChange(_ context.Context, entity, operation string) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, entity+"/"+operation)
	return nil
}

type testServer struct {
	engine    *gin.Engine
	store     *repository.MemoryStore
	refresher *fakeRefresher
	changes   *fakeChanges
	bus       *events.InMemoryBus
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	refresher := &fakeRefresher{}
	changes := &fakeChanges{}
	bus := events.NewInMemoryBus(logger.Discard())
	h := New(service.NewQueryService(store, nil, logger.Discard()), refresher, changes, bus, validator.New())

	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1/principal-analytics"), nil)
	return testServer{engine: engine, store: store, refresher: refresher, changes: changes, bus: bus}
}

func (s testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func seedRow(t *testing.T, store *repository.MemoryStore, name string, score float64, status domain.ActivityStatus) domain.SummaryRow {
	t.Helper()
	row := domain.SummaryRow{
		PrincipalID:       uuid.New(),
		PrincipalName:     name,
		EngagementScore:   score,
		ActivityStatus:    status,
		ProductCategories: []string{},
	}
	_, err := store.Replace(context.Background(), row)
	require.NoError(t, err)
	return row
}

func TestListSummariesReturnsPageShape(t *testing.T) {
	s := newTestServer(t)
	seedRow(t, s.store, "Acme Foods", 80, domain.ActivityActive)
	seedRow(t, s.store, "Bolt Beverages", 30, domain.ActivityStale)
	seedRow(t, s.store, "Crisp Snacks", 60, domain.ActivityActive)

	rec := s.do(http.MethodGet, "/api/v1/principal-analytics/summaries?statuses=active,moderate&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data       []map[string]any       `json:"data"`
		Pagination domain.Pagination      `json:"pagination"`
		Summary    domain.AnalyticsDigest `json:"analytics_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Data, 1)
	assert.Equal(t, "Acme Foods", body.Data[0]["principal_name"])
	assert.Equal(t, domain.Pagination{Page: 1, Limit: 1, Total: 2, TotalPages: 2, HasNext: true}, body.Pagination)
	assert.Equal(t, 2, body.Summary.TotalCount)
	assert.Equal(t, 2, body.Summary.ActiveCount)
	assert.Equal(t, 70.0, body.Summary.AvgEngagementScore)
}

func TestListSummariesRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"unknown sort field", "sort_by=favourite_colour"},
		{"unknown status", "statuses=ACTIVE,SLEEPY"},
		{"score out of range", "min_engagement_score=120"},
		{"inverted score range", "min_engagement_score=80&max_engagement_score=20"},
		{"page not a number", "page=two"},
		{"negative page", "page=-1"},
		{"zero page", "page=0"},
		{"zero limit", "limit=0"},
		{"zero page and limit", "page=0&limit=0"},
		{"limit too large", "limit=500"},
		{"bad distributor", "distributor_id=abc"},
		{"bad sort order", "sort_order=sideways"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/v1/principal-analytics/summaries?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestListSummariesDefaultsAbsentPaging(t *testing.T) {
	s := newTestServer(t)
	seedRow(t, s.store, "Acme Foods", 80, domain.ActivityActive)

	rec := s.do(http.MethodGet, "/api/v1/principal-analytics/summaries", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Pagination domain.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Pagination.Page)
	assert.Equal(t, domain.DefaultPageSize, body.Pagination.Limit)
}

func TestGetSummary(t *testing.T) {
	s := newTestServer(t)
	row := seedRow(t, s.store, "Acme Foods", 80, domain.ActivityActive)

	rec := s.do(http.MethodGet, "/api/v1/principal-analytics/summaries/"+row.PrincipalID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"principal_name":"Acme Foods"`)

	rec = s.do(http.MethodGet, "/api/v1/principal-analytics/summaries/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/principal-analytics/summaries/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsPassesTopN(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/principal-analytics/stats?top=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, s.refresher.topN)
	assert.Contains(t, rec.Body.String(), `"total_principals":1`)

	rec = s.do(http.MethodGet, "/api/v1/principal-analytics/stats?top=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.refresher.report = service.RefreshReport{Attempted: 3, Refreshed: 2, Failed: 1}
	s.refresher.outcome = service.OutcomeRemoved

	rec := s.do(http.MethodPost, "/api/v1/principal-analytics/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"attempted":3,"refreshed":2,"removed":0,"failed":1}`, rec.Body.String())

	id := uuid.New()
	rec = s.do(http.MethodPost, "/api/v1/principal-analytics/refresh/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"principal_id":"`+id.String()+`","outcome":"removed"}`, rec.Body.String())

	s.refresher.err = apperr.Wrap(apperr.KindUnavailable, "read upstream snapshot", context.DeadlineExceeded)
	rec = s.do(http.MethodPost, "/api/v1/principal-analytics/refresh/"+id.String(), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportChangePublishesEvent(t *testing.T) {
	s := newTestServer(t)
	received := make(chan events.UpstreamChanged, 1)
	s.bus.Subscribe(events.UpstreamChanged{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		received <- e.(events.UpstreamChanged)
		return nil
	}))

	rec := s.do(http.MethodPost, "/api/v1/principal-analytics/changes", `{"entity":"Interactions","operation":"insert"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s.bus.Wait()

	select {
	case change := <-received:
		assert.Equal(t, events.EntityInteractions, change.Entity)
		assert.Equal(t, events.OperationInsert, change.Operation)
	default:
		t.Fatal("expected an upstream change event")
	}
	assert.Equal(t, []string{"interactions/insert"}, s.changes.recorded)

	rec = s.do(http.MethodPost, "/api/v1/principal-analytics/changes", `{"entity":"invoices","operation":"insert"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/principal-analytics/changes", `{"entity":"contacts"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportChangeNotPublishedWhenRecordingFails(t *testing.T) {
	s := newTestServer(t)
	s.changes.err = apperr.Internal("outbox down")

	var published bool
	s.bus.Subscribe(events.UpstreamChanged{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		published = true
		return nil
	}))

	rec := s.do(http.MethodPost, "/api/v1/principal-analytics/changes", `{"entity":"opportunities","operation":"update"}`)
	s.bus.Wait()

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, published)
}
