// Package search runs the aggregation pipeline and the caching, persistence
// and event plumbing around it.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/internal/crawler"
	apperrors "sjsage522/pricescout/pkg/errors"
)

// Pipeline fetches every source for a query and aggregates what came back
type Pipeline struct {
	coordinator *crawler.Coordinator
}

// NewPipeline creates a pipeline on top of a coordinator
func NewPipeline(coordinator *crawler.Coordinator) *Pipeline {
	return &Pipeline{coordinator: coordinator}
}

// Aggregate runs the query against sources and returns the merged result.
// Source failures are reported in the result; only an empty query, no sources,
// unusable rates or a non-positive deadline fail the call, and they do so
// before any fetch starts.
func (p *Pipeline) Aggregate(ctx context.Context, query string, sources []crawler.SourceConfig, rates aggregate.ExchangeRates, deadline time.Duration) (aggregate.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return aggregate.Result{}, apperrors.ErrEmptyQuery
	}
	if len(sources) == 0 {
		return aggregate.Result{}, apperrors.ErrNoSources
	}
	if err := rates.Validate(); err != nil {
		return aggregate.Result{}, apperrors.NewConfiguration("invalid exchange rates", err)
	}
	if deadline <= 0 {
		return aggregate.Result{}, apperrors.NewConfiguration(fmt.Sprintf("fetch deadline must be positive, got %v", deadline), nil)
	}

	results, err := p.coordinator.Run(ctx, query, sources, deadline)
	if err != nil {
		return aggregate.Result{}, err
	}

	return aggregate.Aggregate(query, results, rates), nil
}
