package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/internal/crawler"
	"sjsage522/pricescout/logger"
	apperrors "sjsage522/pricescout/pkg/errors"
	"sjsage522/pricescout/services/cache"
	"sjsage522/pricescout/services/publisher"
	"sjsage522/pricescout/services/store"
)

// RatesProvider supplies the exchange rates for one run
type RatesProvider interface {
	Current() aggregate.ExchangeRates
}

// Store persists searches
type Store interface {
	SaveSearch(ctx context.Context, result aggregate.Result) (int64, error)
	GetSearch(ctx context.Context, id int64) (*store.Search, error)
	RecentSearches(ctx context.Context, limit int) ([]store.Summary, error)
}

// Response is a search answer as served to clients
type Response struct {
	ID int64 `json:"id"`
	aggregate.Result
	Empty     bool      `json:"empty"`
	Degraded  bool      `json:"degraded"`
	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is published for every fresh search
type Event struct {
	ID                int64     `json:"id"`
	Query             string    `json:"query"`
	ReferenceCurrency string    `json:"reference_currency"`
	ResultCount       int       `json:"result_count"`
	Degraded          bool      `json:"degraded"`
	Cheapest          *float64  `json:"cheapest,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Options configures a Service
type Options struct {
	Sources   []crawler.SourceConfig
	Rates     RatesProvider
	Cache     cache.CacheService
	CacheTTL  time.Duration
	Store     Store
	Publisher publisher.Publisher
	Deadline  time.Duration
}

// Service answers queries from the cache or by running the pipeline
type Service struct {
	pipeline  *Pipeline
	sources   []crawler.SourceConfig
	rates     RatesProvider
	cache     cache.CacheService
	cacheTTL  time.Duration
	store     Store
	publisher publisher.Publisher
	deadline  time.Duration
	now       func() time.Time
}

// NewService creates a search service
func NewService(pipeline *Pipeline, opts Options) *Service {
	pub := opts.Publisher
	if pub == nil {
		pub = publisher.Noop{}
	}
	return &Service{
		pipeline:  pipeline,
		sources:   opts.Sources,
		rates:     opts.Rates,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		store:     opts.Store,
		publisher: pub,
		deadline:  opts.Deadline,
		now:       time.Now,
	}
}

// NormalizeQuery lower-cases query and collapses its whitespace
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// CacheKey maps query text to its result cache key. The normalized text is
// hashed so the key holds no spaces or control characters and stays well
// under the memcache key limit.
func CacheKey(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return "search:" + hex.EncodeToString(sum[:])
}

// Search answers query from the cache when possible
func (s *Service) Search(ctx context.Context, query string) (*Response, error) {
	if resp, ok := s.cached(query); ok {
		return resp, nil
	}
	return s.Refresh(ctx, query)
}

// Refresh runs the pipeline regardless of the cache and stores the answer
func (s *Service) Refresh(ctx context.Context, query string) (*Response, error) {
	result, err := s.pipeline.Aggregate(ctx, query, s.sources, s.rates.Current(), s.deadline)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Result:    result,
		Empty:     result.Empty(),
		Degraded:  result.Degraded(),
		CreatedAt: s.now().UTC(),
	}

	if s.store != nil {
		id, err := s.store.SaveSearch(ctx, result)
		if err != nil {
			logger.ForStore().Error().Err(apperrors.NewStorage("save search", err)).Str("query", result.Query).Msg("Failed to save search")
		} else {
			resp.ID = id
		}
	}

	// A degraded answer is not cached so the next request retries the sources
	if !resp.Degraded {
		s.storeCached(query, resp)
	}
	s.publish(resp)

	return resp, nil
}

// GetSearch returns a stored search
func (s *Service) GetSearch(ctx context.Context, id int64) (*store.Search, error) {
	if s.store == nil {
		return nil, store.ErrNotFound
	}
	return s.store.GetSearch(ctx, id)
}

// RecentSearches returns up to limit stored searches, newest first
func (s *Service) RecentSearches(ctx context.Context, limit int) ([]store.Summary, error) {
	if s.store == nil {
		return []store.Summary{}, nil
	}
	return s.store.RecentSearches(ctx, limit)
}

// RecentQueries returns distinct recent queries, newest first
func (s *Service) RecentQueries(ctx context.Context, limit int) ([]string, error) {
	summaries, err := s.RecentSearches(ctx, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(summaries))
	queries := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		key := NormalizeQuery(sum.Query)
		if seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, sum.Query)
	}
	return queries, nil
}

func (s *Service) cached(query string) (*Response, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(CacheKey(query))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.ForCache().Warn().Err(apperrors.NewCache(CacheKey(query), "read failed", err)).Msg("Cache read failed")
		}
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.ForCache().Warn().Err(err).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (s *Service) storeCached(query string, resp *Response) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.ForCache().Warn().Err(err).Msg("Failed to encode result for cache")
		return
	}
	if err := s.cache.Set(CacheKey(query), data, s.cacheTTL); err != nil {
		logger.ForCache().Warn().Err(apperrors.NewCache(CacheKey(query), "write failed", err)).Msg("Cache write failed")
	}
}

func (s *Service) publish(resp *Response) {
	event := Event{
		ID:                resp.ID,
		Query:             resp.Query,
		ReferenceCurrency: resp.ReferenceCurrency,
		ResultCount:       len(resp.Listings),
		Degraded:          resp.Degraded,
		CreatedAt:         resp.CreatedAt,
	}
	if len(resp.Listings) > 0 {
		cheapest := resp.Listings[0].ReferenceAmount
		event.Cheapest = &cheapest
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.ForPublisher().Error().Err(err).Msg("Failed to encode search event")
		return
	}
	if err := s.publisher.Publish(data); err != nil {
		logger.ForPublisher().Error().Err(apperrors.NewPublisher(resp.Query, "publish failed", err)).Msg("Failed to publish search event")
	}
}
