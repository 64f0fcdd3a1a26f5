// Package api exposes the search service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"sjsage522/pricescout/internal/search"
	"sjsage522/pricescout/logger"
	apperrors "sjsage522/pricescout/pkg/errors"
	"sjsage522/pricescout/services/rates"
	"sjsage522/pricescout/services/store"
)

const (
	minQueryLength     = 2
	maxQueryLength     = 100
	defaultRecentLimit = 10
	maxRecentLimit     = 50
)

// Searcher is the search service as seen by the handlers
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Response, error)
	GetSearch(ctx context.Context, id int64) (*store.Search, error)
	RecentSearches(ctx context.Context, limit int) ([]store.Summary, error)
}

// Options configures the HTTP layer
type Options struct {
	AllowedOrigins     []string
	RateLimitPerSecond float64
	ReferenceCurrency  string
	SourceCount        int
	// RatesStatus is optional and reported by the health endpoint
	RatesStatus func() rates.Status
}

// Handlers serves the HTTP API
type Handlers struct {
	searcher Searcher
	opts     Options
	started  time.Time
}

// NewHandlers creates the API handlers
func NewHandlers(searcher Searcher, opts Options) *Handlers {
	return &Handlers{
		searcher: searcher,
		opts:     opts,
		started:  time.Now(),
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

// SearchProducts runs or serves from cache a product search
func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(query); n < minQueryLength || n > maxQueryLength {
		writeError(w, http.StatusBadRequest, "query must be between 2 and 100 characters")
		return
	}

	resp, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSearch returns a stored search by id
func (h *Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid search id")
		return
	}

	s, err := h.searcher.GetSearch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "search not found")
		return
	}
	if err != nil {
		logger.ForAPI().Error().Err(err).Int64("id", id).Msg("Failed to load search")
		writeError(w, http.StatusInternalServerError, "failed to load search")
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// RecentSearches lists the latest searches
func (h *Handlers) RecentSearches(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	summaries, err := h.searcher.RecentSearches(r.Context(), limit)
	if err != nil {
		logger.ForAPI().Error().Err(err).Msg("Failed to list searches")
		writeError(w, http.StatusInternalServerError, "failed to list searches")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"searches": summaries,
		"count":    len(summaries),
	})
}

// Health reports liveness and the state of the exchange rates
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":             "healthy",
		"timestamp":          time.Now().UTC(),
		"uptime_seconds":     int64(time.Since(h.started).Seconds()),
		"reference_currency": h.opts.ReferenceCurrency,
		"sources":            h.opts.SourceCount,
	}
	if h.opts.RatesStatus != nil {
		body["rates"] = h.opts.RatesStatus()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNoSources):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		logger.ForAPI().Error().Err(err).Msg("Search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.ForAPI().Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
