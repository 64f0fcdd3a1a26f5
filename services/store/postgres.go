package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/internal/crawler"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS searches (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	reference_currency TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	sources JSONB NOT NULL DEFAULT '[]',
	diagnostics JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	search_id BIGINT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	raw_price_text TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	currency TEXT NOT NULL,
	reference_amount DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL,
	url TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_search ON listings(search_id, position);
`

const insertListingSQL = `
INSERT INTO listings (search_id, position, title, raw_price_text, amount, currency, reference_amount, source, url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

// PostgresStore implements the search store on PostgreSQL through a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and checks the connection
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveSearch inserts the search row and all its listings in one transaction
func (s *PostgresStore) SaveSearch(ctx context.Context, result aggregate.Result) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sources, err := json.Marshal(result.Sources)
	if err != nil {
		return 0, fmt.Errorf("failed to encode source reports: %w", err)
	}
	diagnostics, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return 0, fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO searches (query, reference_currency, result_count, degraded, sources, diagnostics)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		result.Query, result.ReferenceCurrency, len(result.Listings), result.Degraded(), sources, diagnostics,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert search: %w", err)
	}

	if len(result.Listings) > 0 {
		batch := &pgx.Batch{}
		for i, e := range result.Listings {
			batch.Queue(insertListingSQL,
				id, i, e.Title, e.RawPriceText, *e.Amount, e.Currency, e.ReferenceAmount, string(e.SourceID), e.URL,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range result.Listings {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return 0, fmt.Errorf("batch insert failed at row %d: %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return 0, fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit search: %w", err)
	}
	return id, nil
}

// GetSearch loads a search and its listings in stored order
func (s *PostgresStore) GetSearch(ctx context.Context, id int64) (*Search, error) {
	var (
		search      Search
		sources     []byte
		diagnostics []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, query, reference_currency, result_count, degraded, sources, diagnostics, created_at
		FROM searches WHERE id = $1`, id,
	).Scan(
		&search.ID, &search.Query, &search.ReferenceCurrency, &search.ResultCount,
		&search.Degraded, &sources, &diagnostics, &search.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load search %d: %w", id, err)
	}

	if err := json.Unmarshal(sources, &search.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode source reports: %w", err)
	}
	if err := json.Unmarshal(diagnostics, &search.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT title, raw_price_text, amount, currency, reference_amount, source, url
		FROM listings WHERE search_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	defer rows.Close()

	search.Listings = []aggregate.Entry{}
	for rows.Next() {
		var (
			e      aggregate.Entry
			amount float64
			source string
		)
		if err := rows.Scan(&e.Title, &e.RawPriceText, &amount, &e.Currency, &e.ReferenceAmount, &source, &e.URL); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		e.Amount = &amount
		e.SourceID = crawler.SourceID(source)
		search.Listings = append(search.Listings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	return &search, nil
}

// RecentSearches returns up to limit searches, newest first
func (s *PostgresStore) RecentSearches(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, query, reference_currency, result_count, degraded, created_at
		FROM searches ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Query, &sum.ReferenceCurrency, &sum.ResultCount, &sum.Degraded, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read searches: %w", err)
	}
	return out, nil
}
