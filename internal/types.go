package internal

import (
	"io"

	"sjsage522/pricescout/internal/search"
	"sjsage522/pricescout/logger"
	"sjsage522/pricescout/services/cache"
	"sjsage522/pricescout/services/publisher"
	"sjsage522/pricescout/services/rates"
)

// SearchStore is a search store that holds resources
type SearchStore interface {
	search.Store
	Close()
}

// Dependencies holds all service dependencies
type Dependencies struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     SearchStore
	Rates     *rates.Provider
}

// Cleanup releases every dependency that holds a connection
func (d *Dependencies) Cleanup() {
	if d.Rates != nil {
		d.Rates.Stop()
	}
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			logger.ForPublisher().Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if closer, ok := d.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.ForCache().Warn().Err(err).Msg("Failed to close cache")
		}
	}
	if d.Store != nil {
		d.Store.Close()
	}
}
