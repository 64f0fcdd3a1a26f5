package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/internal/crawler"
	"sjsage522/pricescout/internal/search"
	apperrors "sjsage522/pricescout/pkg/errors"
	"sjsage522/pricescout/services/rates"
	"sjsage522/pricescout/services/store"
)

type mockSearcher struct {
	queries   []string
	searchErr error
	searches  map[int64]*store.Search
	recent    []store.Summary
	lastLimit int
}

func (m *mockSearcher) Search(_ context.Context, query string) (*search.Response, error) {
	m.queries = append(m.queries, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	v := 12.5
	return &search.Response{
		ID: 7,
		Result: aggregate.Result{
			Query:             query,
			ReferenceCurrency: "USD",
			Listings: []aggregate.Entry{{
				Listing:         crawler.Listing{Title: "Kettle", Amount: &v, Currency: "USD", SourceID: crawler.SourceAmazon, URL: "https://www.amazon.com/k"},
				ReferenceAmount: v,
			}},
			Sources: []crawler.SourceReport{{SourceID: crawler.SourceAmazon, Status: crawler.StatusOK, Listings: 1}},
		},
	}, nil
}

func (m *mockSearcher) GetSearch(_ context.Context, id int64) (*store.Search, error) {
	if s, ok := m.searches[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockSearcher) RecentSearches(_ context.Context, limit int) ([]store.Summary, error) {
	m.lastLimit = limit
	return m.recent, nil
}

func newTestRouter(searcher Searcher, opts Options) http.Handler {
	return NewRouter(NewHandlers(searcher, opts))
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchProducts(t *testing.T) {
	searcher := &mockSearcher{}
	router := newTestRouter(searcher, Options{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/products/search", `{"query":"  kettle  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(ProcessTimeHeader))
	assert.Equal(t, []string{"kettle"}, searcher.queries)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, "kettle", body["query"])
	assert.Equal(t, false, body["empty"])
	assert.Equal(t, false, body["degraded"])

	listings := body["listings"].([]interface{})
	require.Len(t, listings, 1)
	first := listings[0].(map[string]interface{})
	assert.Equal(t, "amazon", first["source"])
	assert.Equal(t, 12.5, first["reference_amount"])
}

func TestSearchProductsValidation(t *testing.T) {
	searcher := &mockSearcher{}
	router := newTestRouter(searcher, Options{})

	for _, body := range []string{
		`not json`,
		`{"query":"k"}`,
		`{"query":"   "}`,
		`{"query":"` + strings.Repeat("x", 101) + `"}`,
	} {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/products/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, searcher.queries)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/products/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchProductsErrors(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{apperrors.ErrNoSources, http.StatusServiceUnavailable},
		{apperrors.ErrEmptyQuery, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		router := newTestRouter(&mockSearcher{searchErr: tc.err}, Options{})
		rec := doRequest(t, router, http.MethodPost, "/api/v1/products/search", `{"query":"kettle"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestGetSearch(t *testing.T) {
	searcher := &mockSearcher{searches: map[int64]*store.Search{
		3: {Summary: store.Summary{ID: 3, Query: "kettle", ReferenceCurrency: "USD"}, Listings: []aggregate.Entry{}},
	}}
	router := newTestRouter(searcher, Options{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/searches/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "kettle", body["query"])

	rec = doRequest(t, router, http.MethodGet, "/api/v1/searches/4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/searches/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentSearches(t *testing.T) {
	searcher := &mockSearcher{recent: []store.Summary{{ID: 2, Query: "b"}, {ID: 1, Query: "a"}}}
	router := newTestRouter(searcher, Options{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/searches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRecentLimit, searcher.lastLimit)

	var body struct {
		Searches []store.Summary `json:"searches"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "b", body.Searches[0].Query)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/searches?limit=50", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, searcher.lastLimit)

	for _, limit := range []string{"0", "51", "x"} {
		rec = doRequest(t, router, http.MethodGet, "/api/v1/searches?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestHealth(t *testing.T) {
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	router := newTestRouter(&mockSearcher{}, Options{
		ReferenceCurrency: "USD",
		SourceCount:       4,
		RatesStatus:       func() rates.Status { return rates.Status{Live: true, UpdatedAt: updated} },
	})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(4), body["sources"])
	assert.Equal(t, true, body["rates"].(map[string]interface{})["live"])
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(&mockSearcher{}, Options{RateLimitPerSecond: 1})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doRequest(t, router, http.MethodPost, "/api/v1/products/search", `{"query":"kettle"}`)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Contains(t, statuses[1:], http.StatusTooManyRequests)

	// Other routes are not limited
	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	router := newTestRouter(&mockSearcher{}, Options{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
