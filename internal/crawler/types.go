package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "sjsage522/pricescout/pkg/errors"
)

// SourceID identifies a supported e-commerce site
type SourceID string

const (
	SourceAmazon   SourceID = "amazon"
	SourceEbay     SourceID = "ebay"
	SourceJumia    SourceID = "jumia"
	SourceKilimall SourceID = "kilimall"
)

// Listing is one product offer extracted from one source.
// Amount is nil when the price text could not be normalized.
type Listing struct {
	Title        string   `json:"title"`
	RawPriceText string   `json:"raw_price_text"`
	Amount       *float64 `json:"amount"`
	Currency     string   `json:"currency"`
	SourceID     SourceID `json:"source"`
	URL          string   `json:"url"`
}

// Fragment is the raw title, price text and link found in one listing container
type Fragment struct {
	Title     string
	PriceText string
	URL       string
}

// Rules lists CSS selectors per field, tried in order until one yields a value
type Rules struct {
	Containers []string `yaml:"containers"`
	Title      []string `yaml:"title"`
	Price      []string `yaml:"price"`
	Link       []string `yaml:"link"`
}

// SourceConfig describes how to search one source and read its result page
type SourceConfig struct {
	ID SourceID `yaml:"id"`
	// BaseURL resolves relative listing links
	BaseURL string `yaml:"base_url"`
	// SearchURL contains a {query} placeholder replaced by the escaped search term
	SearchURL string `yaml:"search_url"`
	// Currency is assumed when the price text names none
	Currency string `yaml:"currency"`
	Rules    Rules  `yaml:"rules"`
}

// ExtractorFunc turns a parsed result page into fragments
type ExtractorFunc func(*goquery.Document, SourceConfig) []Fragment

// SourceFetcher retrieves and extracts the listings of one source for a query
type SourceFetcher interface {
	Fetch(ctx context.Context, src SourceConfig, query string) ([]Listing, error)
}

// Status is the outcome of one source task
type Status string

const (
	StatusOK      Status = "ok"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// SourceResult is what one source task hands back to the coordinator
type SourceResult struct {
	SourceID SourceID
	Status   Status
	Listings []Listing
	Err      error
	Elapsed  time.Duration
}

// SourceReport is the per-source entry of the status report
type SourceReport struct {
	SourceID  SourceID `json:"source"`
	Status    Status   `json:"status"`
	Listings  int      `json:"listings"`
	ErrorType string   `json:"error_type,omitempty"`
	Error     string   `json:"error,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

// Report summarizes the result for observability
func (r SourceResult) Report() SourceReport {
	report := SourceReport{
		SourceID:  r.SourceID,
		Status:    r.Status,
		Listings:  len(r.Listings),
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		report.Error = r.Err.Error()
		report.ErrorType = string(apperrors.TypeOf(r.Err))
		report.Retryable = apperrors.IsRetryable(r.Err)
	}
	return report
}
