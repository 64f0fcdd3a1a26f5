package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/pricescout/helpers"
	"sjsage522/pricescout/internal/price"
	"sjsage522/pricescout/logger"
	apperrors "sjsage522/pricescout/pkg/errors"
	"sjsage522/pricescout/services/cache"
)

// Fetcher implements SourceFetcher over plain HTTP and goquery
type Fetcher struct {
	Client    *http.Client
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Extract   ExtractorFunc
}

// NewFetcher creates a fetcher with the given request timeout and politeness delay range
func NewFetcher(cacheSvc cache.CacheService, requestTimeout, blockTime, minDelay, maxDelay time.Duration) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: requestTimeout},
		CacheSvc:  cacheSvc,
		BlockTime: blockTime,
		MinDelay:  minDelay,
		MaxDelay:  maxDelay,
		Extract:   Extract,
	}
}

// SearchURL fills the source's {query} placeholder with the escaped query
func SearchURL(src SourceConfig, query string) string {
	return strings.ReplaceAll(src.SearchURL, "{query}", url.QueryEscape(strings.TrimSpace(query)))
}

// BlockKey is the cache key that marks a source as rate limited
func BlockKey(id SourceID) string {
	return string(id) + "_rate_limited"
}

// Fetch retrieves one source's result page and extracts its listings.
// Listings whose price cannot be normalized are kept with a nil Amount.
func (f *Fetcher) Fetch(ctx context.Context, src SourceConfig, query string) ([]Listing, error) {
	log := logger.ForSource(string(src.ID))
	source := string(src.ID)

	if f.blocked(src.ID) {
		return nil, apperrors.NewRateLimit(source, f.BlockTime)
	}

	if err := f.wait(ctx); err != nil {
		return nil, apperrors.NewNetwork(source, "canceled before request", err)
	}

	target := SearchURL(src, query)
	body, err := helpers.FetchWithRandomHeaders(ctx, f.client(), target)
	if err != nil {
		return nil, f.classify(src.ID, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, apperrors.NewParsing(source, "failed to parse result page", err)
	}

	extract := f.Extract
	if extract == nil {
		extract = Extract
	}
	fragments := extract(doc, src)

	listings := make([]Listing, 0, len(fragments))
	for _, fr := range fragments {
		listing := Listing{
			Title:        fr.Title,
			RawPriceText: fr.PriceText,
			Currency:     price.ResolveCurrency(fr.PriceText, src.Currency),
			SourceID:     src.ID,
			URL:          fr.URL,
		}

		normalized, err := price.Normalize(fr.PriceText, src.Currency)
		if err != nil {
			log.Debug().Str("price_text", fr.PriceText).Msg("Unparseable price")
		} else {
			amount := normalized.Amount
			listing.Amount = &amount
			listing.Currency = normalized.Currency
		}
		listings = append(listings, listing)
	}

	log.Debug().
		Str("url", target).
		Int("fragments", len(fragments)).
		Msg("Extracted listings")

	return listings, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *Fetcher) blocked(id SourceID) bool {
	if f.CacheSvc == nil {
		return false
	}
	_, err := f.CacheSvc.Get(BlockKey(id))
	return err == nil
}

// wait sleeps for a random politeness delay, returning early if ctx ends
func (f *Fetcher) wait(ctx context.Context) error {
	delay := helpers.RandomDelay(f.MinDelay, f.MaxDelay)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify turns a fetch failure into a typed error and blocks rate-limited sources
func (f *Fetcher) classify(id SourceID, err error) error {
	source := string(id)

	var statusErr *helpers.StatusError
	if !errors.As(err, &statusErr) {
		return apperrors.NewNetwork(source, "request failed", err)
	}

	if statusErr.RateLimited() {
		if f.CacheSvc != nil && f.BlockTime > 0 {
			value := []byte(fmt.Sprintf("%d", f.BlockTime/time.Second))
			if cacheErr := f.CacheSvc.Set(BlockKey(id), value, f.BlockTime); cacheErr != nil {
				logger.ForSource(source).Warn().Err(cacheErr).Msg("Failed to store rate limit block")
			}
		}
		return apperrors.New(apperrors.ErrorTypeRateLimit, source, "source answered with rate limit", statusErr)
	}

	return apperrors.NewStatus(source, statusErr.StatusCode, statusErr)
}
