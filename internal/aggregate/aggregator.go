// Package aggregate merges per-source results into one deduplicated list
// ordered by price in a single reference currency.
package aggregate

import (
	"sort"

	"sjsage522/pricescout/internal/crawler"
)

// Entry is a listing annotated with its price in the reference currency
type Entry struct {
	crawler.Listing
	ReferenceAmount float64 `json:"reference_amount"`
}

// Diagnostics counts listings dropped on the way to the result
type Diagnostics struct {
	Unparsed      int `json:"unparsed"`
	Unconvertible int `json:"unconvertible"`
	Duplicates    int `json:"duplicates"`
}

// Result is the aggregated answer for one query
type Result struct {
	Query             string                 `json:"query"`
	ReferenceCurrency string                 `json:"reference_currency"`
	Listings          []Entry                `json:"listings"`
	Sources           []crawler.SourceReport `json:"sources"`
	Diagnostics       Diagnostics            `json:"diagnostics"`
}

// Empty reports whether no listing survived. This is a valid answer, not a failure.
func (r Result) Empty() bool {
	return len(r.Listings) == 0
}

// Degraded reports whether every source failed or timed out
func (r Result) Degraded() bool {
	if len(r.Sources) == 0 {
		return false
	}
	for _, s := range r.Sources {
		if s.Status != crawler.StatusError && s.Status != crawler.StatusTimeout {
			return false
		}
	}
	return true
}

type dedupKey struct {
	source crawler.SourceID
	url    string
}

// Aggregate merges the listings of all results, converts them with rates,
// drops duplicates and sorts ascending by reference amount.
//
// Duplicates share source and URL; the first one in results order is kept.
// Ties are broken by source, then title, then URL, so the output never depends
// on the order in which sources finished.
func Aggregate(query string, results []crawler.SourceResult, rates ExchangeRates) Result {
	out := Result{
		Query:             query,
		ReferenceCurrency: rates.Reference,
		Listings:          []Entry{},
		Sources:           make([]crawler.SourceReport, 0, len(results)),
	}

	seen := make(map[dedupKey]bool)
	for _, res := range results {
		out.Sources = append(out.Sources, res.Report())

		for _, l := range res.Listings {
			if l.Amount == nil {
				out.Diagnostics.Unparsed++
				continue
			}
			if l.Title == "" || l.URL == "" {
				continue
			}

			key := dedupKey{source: l.SourceID, url: l.URL}
			if seen[key] {
				out.Diagnostics.Duplicates++
				continue
			}

			ref, err := rates.Convert(*l.Amount, l.Currency)
			if err != nil {
				out.Diagnostics.Unconvertible++
				continue
			}

			seen[key] = true
			out.Listings = append(out.Listings, Entry{Listing: l, ReferenceAmount: ref})
		}
	}

	sort.SliceStable(out.Listings, func(i, j int) bool {
		a, b := out.Listings[i], out.Listings[j]
		if a.ReferenceAmount != b.ReferenceAmount {
			return a.ReferenceAmount < b.ReferenceAmount
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.URL < b.URL
	})

	return out
}
