package crawler

import (
	"context"
	"sync"
	"time"

	"sjsage522/pricescout/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// mockFetcher answers per source with a canned function
type mockFetcher struct {
	mu    sync.Mutex
	calls map[SourceID]int
	fn    map[SourceID]func(ctx context.Context) ([]Listing, error)
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		calls: make(map[SourceID]int),
		fn:    make(map[SourceID]func(ctx context.Context) ([]Listing, error)),
	}
}

func (m *mockFetcher) on(id SourceID, fn func(ctx context.Context) ([]Listing, error)) *mockFetcher {
	m.fn[id] = fn
	return m
}

func (m *mockFetcher) Fetch(ctx context.Context, src SourceConfig, query string) ([]Listing, error) {
	m.mu.Lock()
	m.calls[src.ID]++
	fn := m.fn[src.ID]
	m.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (m *mockFetcher) callCount(id SourceID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func amount(v float64) *float64 {
	return &v
}
