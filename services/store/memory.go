package store

import (
	"context"
	"sync"
	"time"

	"sjsage522/pricescout/internal/aggregate"
)

// MemoryStore keeps searches in process memory, used when no database is configured
type MemoryStore struct {
	mu       sync.RWMutex
	searches []Search
	maxSize  int
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates a store that keeps at most maxSize searches
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &MemoryStore{maxSize: maxSize, now: time.Now}
}

// SaveSearch stores result and returns its id
func (m *MemoryStore) SaveSearch(_ context.Context, result aggregate.Result) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.searches = append(m.searches, newSearch(m.nextID, result, m.now().UTC()))
	if len(m.searches) > m.maxSize {
		m.searches = m.searches[len(m.searches)-m.maxSize:]
	}
	return m.nextID, nil
}

// GetSearch returns the search with the given id
func (m *MemoryStore) GetSearch(_ context.Context, id int64) (*Search, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.searches {
		if m.searches[i].ID == id {
			s := m.searches[i]
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// RecentSearches returns up to limit searches, newest first
func (m *MemoryStore) RecentSearches(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, limit)
	for i := len(m.searches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.searches[i].Summary)
	}
	return out, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() {}
