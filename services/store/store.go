// Package store persists past searches and their listings.
package store

import (
	"errors"
	"time"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/internal/crawler"
)

// ErrNotFound is returned when a search id does not exist
var ErrNotFound = errors.New("search not found")

// Summary is one row of the recent searches listing
type Summary struct {
	ID                int64     `json:"id"`
	Query             string    `json:"query"`
	ReferenceCurrency string    `json:"reference_currency"`
	ResultCount       int       `json:"result_count"`
	Degraded          bool      `json:"degraded"`
	CreatedAt         time.Time `json:"created_at"`
}

// Search is a stored search with its full result
type Search struct {
	Summary
	Listings    []aggregate.Entry      `json:"listings"`
	Sources     []crawler.SourceReport `json:"sources"`
	Diagnostics aggregate.Diagnostics  `json:"diagnostics"`
}

func newSearch(id int64, result aggregate.Result, createdAt time.Time) Search {
	listings := make([]aggregate.Entry, len(result.Listings))
	copy(listings, result.Listings)
	sources := make([]crawler.SourceReport, len(result.Sources))
	copy(sources, result.Sources)

	return Search{
		Summary: Summary{
			ID:                id,
			Query:             result.Query,
			ReferenceCurrency: result.ReferenceCurrency,
			ResultCount:       len(result.Listings),
			Degraded:          result.Degraded(),
			CreatedAt:         createdAt,
		},
		Listings:    listings,
		Sources:     sources,
		Diagnostics: result.Diagnostics,
	}
}

// Result rebuilds the aggregated result the search was saved from
func (s Search) Result() aggregate.Result {
	return aggregate.Result{
		Query:             s.Query,
		ReferenceCurrency: s.ReferenceCurrency,
		Listings:          s.Listings,
		Sources:           s.Sources,
		Diagnostics:       s.Diagnostics,
	}
}
