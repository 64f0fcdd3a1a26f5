package crawler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"sjsage522/pricescout/logger"
	apperrors "sjsage522/pricescout/pkg/errors"
)

// Coordinator fans a query out to every source and collects what finishes
// before the deadline. A failing source never aborts the others.
type Coordinator struct {
	fetcher        SourceFetcher
	maxConcurrency int
	now            func() time.Time
}

// NewCoordinator creates a coordinator that runs at most maxConcurrency
// source tasks at once within one Run. A non-positive value means one task
// per source.
func NewCoordinator(fetcher SourceFetcher, maxConcurrency int) *Coordinator {
	return &Coordinator{
		fetcher:        fetcher,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

type indexedResult struct {
	index  int
	result SourceResult
}

// Run executes one task per source and returns one result per source, in the
// order of sources. Sources still running at the deadline are reported as
// timed out and their late results are discarded.
func (c *Coordinator) Run(ctx context.Context, query string, sources []SourceConfig, deadline time.Duration) ([]SourceResult, error) {
	if len(sources) == 0 {
		return nil, apperrors.ErrNoSources
	}

	log := logger.ForCoordinator()

	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// The cap is per run; concurrent runs never wait on each other.
	var sem *semaphore.Weighted
	if c.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(c.maxConcurrency))
	}

	started := c.now()
	resultChan := make(chan indexedResult, len(sources))

	for i, src := range sources {
		go func(i int, src SourceConfig) {
			resultChan <- indexedResult{index: i, result: c.runSource(runCtx, sem, src, query, deadline)}
		}(i, src)
	}

	results := make([]SourceResult, len(sources))
	done := make([]bool, len(sources))
	remaining := len(sources)

collect:
	for remaining > 0 {
		select {
		case r := <-resultChan:
			if !done[r.index] {
				results[r.index] = r.result
				done[r.index] = true
				remaining--
			}
		case <-runCtx.Done():
			break collect
		}
	}

	for i, src := range sources {
		if done[i] {
			continue
		}
		results[i] = SourceResult{
			SourceID: src.ID,
			Status:   StatusTimeout,
			Err:      apperrors.NewTimeout(string(src.ID), deadline),
			Elapsed:  c.now().Sub(started),
		}
	}

	for _, r := range results {
		event := log.Debug()
		if r.Status == StatusError || r.Status == StatusTimeout {
			event = log.Warn().Err(r.Err)
		}
		event.
			Str("source", string(r.SourceID)).
			Str("status", string(r.Status)).
			Int("listings", len(r.Listings)).
			Dur("elapsed", r.Elapsed).
			Msg("Source finished")
	}

	return results, nil
}

// runSource executes one source task and turns every outcome, panics
// included, into a SourceResult.
func (c *Coordinator) runSource(ctx context.Context, sem *semaphore.Weighted, src SourceConfig, query string, deadline time.Duration) (result SourceResult) {
	started := c.now()
	result.SourceID = src.ID

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusError
			result.Listings = nil
			result.Err = apperrors.NewExtraction(string(src.ID), "source task panicked", fmt.Errorf("%v", r))
		}
		result.Elapsed = c.now().Sub(started)
	}()

	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			result.Status = StatusTimeout
			result.Err = apperrors.NewTimeout(string(src.ID), deadline)
			return result
		}
		defer sem.Release(1)
	}

	listings, err := c.fetcher.Fetch(ctx, src, query)
	switch {
	case err != nil && ctx.Err() != nil:
		result.Status = StatusTimeout
		result.Err = apperrors.New(apperrors.ErrorTypeTimeout, string(src.ID), fmt.Sprintf("did not finish within %v", deadline), err)
	case err != nil:
		result.Status = StatusError
		result.Err = err
	case len(listings) == 0:
		result.Status = StatusEmpty
	default:
		result.Status = StatusOK
		result.Listings = listings
	}
	return result
}
