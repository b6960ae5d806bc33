package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/obsquery/internal/cache"
	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/middleware"
	"github.com/rpattn/obsquery/internal/models"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
	"github.com/rpattn/obsquery/internal/sequence"
	"github.com/rpattn/obsquery/internal/testutil"
)

type testServer struct {
	handler http.Handler
	fx      *testutil.Fixtures
}

func newTestServer(t *testing.T, filters domain.Preferences) *testServer {
	t.Helper()
	catalog, err := models.Default()
	require.NoError(t, err)
	conn, fx := testutil.NewSeededDB(t)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	entities := repository.NewEntityRepository(conn)
	factory, err := query.NewFactory(catalog.Schemas, query.Options{
		Lookup:  entities.Lookup,
		Filters: catalog.Filters,
	})
	require.NoError(t, err)
	comp := compiler.New(catalog.Predicates, conn, compiler.WithMetrics(m))
	store := cache.NewStore(repository.NewQueryRecordRepository(conn), comp, cache.WithMetrics(m), cache.WithMaxCachedIDs(4))

	srv := NewServer(Deps{
		Factory:        factory,
		Compiler:       comp,
		Store:          store,
		Navigator:      sequence.New(store, factory, sequence.WithMetrics(m)),
		Entities:       entities,
		Filters:        filters,
		Metrics:        m,
		Gatherer:       reg,
		AllowedOrigins: []string{"http://example.test"},
	})
	return &testServer{handler: srv.Handler(), fx: fx}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestResults(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/observation?by_user=alice&has_images=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	body := decode[resultsResponse](t, rec)
	assert.Equal(t, s.fx.ObservationIDs("o3", "o1"), body.IDs)
	assert.Equal(t, int64(2), body.Total)
	require.Len(t, body.Records, 2)
	assert.Equal(t, "Boletus edulis", body.Records[0].Title)
	assert.NotZero(t, body.RecordID)
	assert.False(t, body.PreferenceFilter)
}

func TestResults_TruncatedOrderingPagesFromStore(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/Observation?per_page=3&page=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[resultsResponse](t, rec)
	assert.True(t, body.Truncated)
	assert.Equal(t, int64(6), body.Total)
	assert.Equal(t, s.fx.ObservationIDs("o2", "o5", "o6"), body.IDs)
}

func TestResults_SiteFilters(t *testing.T) {
	s := newTestServer(t, domain.Preferences{"has_specimen": {State: domain.FilterOn}})
	body := decode[resultsResponse](t, s.get(t, "/api/observation"))
	assert.True(t, body.PreferenceFilter)
	assert.Equal(t, s.fx.ObservationIDs("o4", "o1"), body.IDs)

	// explicit parameters win over the site default
	body = decode[resultsResponse](t, s.get(t, "/api/observation?has_specimen=false"))
	assert.False(t, body.PreferenceFilter)
	assert.Equal(t, s.fx.ObservationIDs("o3", "o2", "o5", "o6"), body.IDs)
}

func TestResults_ValidationErrorsAre422(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/observation?has_images=maybe")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[errorResponse](t, rec)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "has_images", body.Errors[0].Field)
}

func TestUnknownModelIs404(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/widget").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/widget/count").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/widget/step?record=1&id=1&dir=next").Code)
}

func TestCount(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/name?observation_query[by_user]=alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.get(t, "/api/name/count?observation_query[by_user]=alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int64{"count": 3}, decode[map[string]int64](t, rec))
}

func TestStep(t *testing.T) {
	s := newTestServer(t, nil)
	results := decode[resultsResponse](t, s.get(t, "/api/observation?by_user=alice"))

	target := "/api/observation/step?record=" + strconv.FormatInt(results.RecordID, 10) +
		"&id=" + strconv.FormatInt(s.fx.Observations["o3"], 10) + "&dir=next"
	rec := s.get(t, target)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[sequence.Result](t, rec)
	assert.True(t, res.Found)
	assert.False(t, res.Fallback)
	assert.Equal(t, s.fx.Observations["o1"], res.ID)

	rec = s.get(t, "/api/observation/step?record=424242&id="+strconv.FormatInt(s.fx.Observations["o3"], 10)+"&dir=next")
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[sequence.Result](t, rec)
	assert.True(t, res.Fallback)
	assert.Equal(t, s.fx.Observations["o4"], res.ID)
}

func TestStep_BadRequest(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/observation/step?record=1&id=2&dir=sideways").Code)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/observation/step?id=2&dir=next").Code)
}

func TestExport(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/location/export.xlsx")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.get(t, "/api/user").Code)

	rec := s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "obsquery_http_requests_total"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/observation", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResults_LetterPagination(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get(t, "/api/observation?letter=a&need_letters=1&per_page=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[resultsResponse](t, rec)
	assert.Equal(t, "A", body.Letter)
	assert.Equal(t, []string{"A", "B", "F"}, body.UsedLetters)
	assert.Equal(t, int64(4), body.Total)
	assert.Equal(t, s.fx.ObservationIDs("o4", "o1", "o2"), body.IDs)

	body = decode[resultsResponse](t, s.get(t, "/api/observation?letter=A&per_page=3&page=2"))
	assert.Equal(t, s.fx.ObservationIDs("o5"), body.IDs)
	assert.Empty(t, body.UsedLetters)

	body = decode[resultsResponse](t, s.get(t, "/api/name?need_letters=true"))
	assert.Equal(t, []string{"A", "B"}, body.UsedLetters)
	assert.Len(t, body.IDs, 5)

	rec = s.get(t, "/api/observation?letter=ab")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
