package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"sjsage522/pricescout/internal/search"
	"sjsage522/pricescout/logger"
	"sjsage522/pricescout/services/publisher"
)

// Refresher re-runs searches outside of client requests
type Refresher interface {
	RecentQueries(ctx context.Context, limit int) ([]string, error)
	Refresh(ctx context.Context, query string) (*search.Response, error)
}

// Stats summarizes one warming run
type Stats struct {
	Queries  int
	Warmed   int
	Degraded int
	Failed   int
	Elapsed  time.Duration
}

// Worker keeps the result cache warm for recently searched queries
type Worker struct {
	ctx       context.Context
	refresher Refresher
	publisher publisher.Publisher
	limit     int
	cron      *cron.Cron
}

// NewWorker creates a new worker that warms up to limit queries per run
func NewWorker(ctx context.Context, refresher Refresher, pub publisher.Publisher, limit int) *Worker {
	if pub == nil {
		pub = publisher.Noop{}
	}
	return &Worker{
		ctx:       ctx,
		refresher: refresher,
		publisher: pub,
		limit:     limit,
	}
}

// Start runs the warmer on schedule (a cron spec such as "@every 30m")
func (w *Worker) Start(schedule string) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(schedule, func() { w.RunOnce() }); err != nil {
		return fmt.Errorf("invalid warm schedule %q: %w", schedule, err)
	}

	w.cron.Start()
	logger.ForWorker().Info().Str("schedule", schedule).Int("limit", w.limit).Msg("Cache warmer scheduled")
	return nil
}

// Stop stops the schedule and waits for a running pass to finish
func (w *Worker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// RunOnce refreshes the most recent distinct queries one after another and
// then trims the event stream
func (w *Worker) RunOnce() Stats {
	log := logger.ForWorker()
	start := time.Now()
	var stats Stats

	queries, err := w.refresher.RecentQueries(w.ctx, w.limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list recent queries")
		return stats
	}
	stats.Queries = len(queries)

	for _, q := range queries {
		if w.ctx.Err() != nil {
			break
		}

		resp, err := w.refresher.Refresh(w.ctx, q)
		switch {
		case err != nil:
			stats.Failed++
			log.Warn().Err(err).Str("query", q).Msg("Failed to warm query")
		case resp.Degraded:
			stats.Degraded++
		default:
			stats.Warmed++
		}
	}

	if err := w.publisher.TrimStreams(); err != nil {
		logger.ForPublisher().Error().Err(err).Msg("Failed to trim stream")
	}

	stats.Elapsed = time.Since(start)
	log.Info().
		Int("queries", stats.Queries).
		Int("warmed", stats.Warmed).
		Int("degraded", stats.Degraded).
		Int("failed", stats.Failed).
		Dur("elapsed", stats.Elapsed).
		Msg("Cache warm pass finished")

	return stats
}
