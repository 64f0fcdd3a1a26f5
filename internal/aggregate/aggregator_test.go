package aggregate

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/pricescout/internal/crawler"
	apperrors "sjsage522/pricescout/pkg/errors"
)

func amount(v float64) *float64 {
	return &v
}

func listing(source crawler.SourceID, title string, price float64, currency, url string) crawler.Listing {
	return crawler.Listing{
		Title:        title,
		RawPriceText: "raw",
		Amount:       amount(price),
		Currency:     currency,
		SourceID:     source,
		URL:          url,
	}
}

func okResult(source crawler.SourceID, listings ...crawler.Listing) crawler.SourceResult {
	return crawler.SourceResult{SourceID: source, Status: crawler.StatusOK, Listings: listings}
}

var testRates = ExchangeRates{Reference: "USD", PerReference: map[string]float64{"KES": 130, "EUR": 0.5}}

func TestAggregateSortsByReferenceAmount(t *testing.T) {
	results := []crawler.SourceResult{
		okResult(crawler.SourceJumia,
			listing(crawler.SourceJumia, "Phone J", 13000, "KES", "https://j/1"), // 100 USD
			listing(crawler.SourceJumia, "Case J", 1300, "KES", "https://j/2"),   // 10 USD
		),
		okResult(crawler.SourceAmazon,
			listing(crawler.SourceAmazon, "Phone A", 99.5, "USD", "https://a/1"),
			listing(crawler.SourceAmazon, "Cable A", 25, "EUR", "https://a/2"), // 50 USD
		),
	}

	out := Aggregate("phone", results, testRates)
	require.Len(t, out.Listings, 4)

	titles := make([]string, 0, len(out.Listings))
	for _, e := range out.Listings {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Case J", "Cable A", "Phone A", "Phone J"}, titles)
	assert.InDelta(t, 10.0, out.Listings[0].ReferenceAmount, 1e-9)
	assert.InDelta(t, 50.0, out.Listings[1].ReferenceAmount, 1e-9)
	assert.Equal(t, "USD", out.ReferenceCurrency)
	assert.False(t, out.Empty())
	assert.False(t, out.Degraded())

	for i := 1; i < len(out.Listings); i++ {
		assert.LessOrEqual(t, out.Listings[i-1].ReferenceAmount, out.Listings[i].ReferenceAmount)
	}
}

func TestAggregateTieBreak(t *testing.T) {
	results := []crawler.SourceResult{
		okResult(crawler.SourceKilimall, listing(crawler.SourceKilimall, "B", 10, "USD", "https://k/b")),
		okResult(crawler.SourceEbay,
			listing(crawler.SourceEbay, "Z", 10, "USD", "https://e/z"),
			listing(crawler.SourceEbay, "A", 10, "USD", "https://e/a2"),
			listing(crawler.SourceEbay, "A", 10, "USD", "https://e/a1"),
		),
	}

	out := Aggregate("tie", results, testRates)
	require.Len(t, out.Listings, 4)

	got := make([]string, 0, 4)
	for _, e := range out.Listings {
		got = append(got, string(e.SourceID)+"/"+e.Title+"/"+e.URL)
	}
	assert.Equal(t, []string{
		"ebay/A/https://e/a1",
		"ebay/A/https://e/a2",
		"ebay/Z/https://e/z",
		"kilimall/B/https://k/b",
	}, got)
}

func TestAggregateDedup(t *testing.T) {
	results := []crawler.SourceResult{
		okResult(crawler.SourceEbay,
			listing(crawler.SourceEbay, "First", 10, "USD", "https://e/1"),
			listing(crawler.SourceEbay, "Second", 5, "USD", "https://e/1"),
		),
		// Same URL on another source is not a duplicate
		okResult(crawler.SourceAmazon, listing(crawler.SourceAmazon, "Other", 7, "USD", "https://e/1")),
	}

	out := Aggregate("dup", results, testRates)
	require.Len(t, out.Listings, 2)
	assert.Equal(t, 1, out.Diagnostics.Duplicates)

	seen := make(map[string]bool)
	for _, e := range out.Listings {
		key := string(e.SourceID) + "|" + e.URL
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}

	for _, e := range out.Listings {
		if e.SourceID == crawler.SourceEbay {
			assert.Equal(t, "First", e.Title)
		}
	}
}

func TestAggregateDropsUnparsedAndUnconvertible(t *testing.T) {
	unparsed := listing(crawler.SourceJumia, "No price", 0, "KES", "https://j/x")
	unparsed.Amount = nil

	results := []crawler.SourceResult{
		okResult(crawler.SourceJumia,
			unparsed,
			listing(crawler.SourceJumia, "Pounds", 5, "GBP", "https://j/gbp"),
			listing(crawler.SourceJumia, "Shillings", 260, "KES", "https://j/kes"),
		),
	}

	out := Aggregate("mixed", results, testRates)
	require.Len(t, out.Listings, 1)
	assert.Equal(t, "Shillings", out.Listings[0].Title)
	assert.InDelta(t, 2.0, out.Listings[0].ReferenceAmount, 1e-9)
	assert.Equal(t, Diagnostics{Unparsed: 1, Unconvertible: 1}, out.Diagnostics)
}

func TestAggregateCurrencyNeutrality(t *testing.T) {
	values := []float64{0.01, 19.99, 34963.99, 1e9 + 0.1}
	var listings []crawler.Listing
	for i, v := range values {
		listings = append(listings, listing(crawler.SourceAmazon, "item", v, "USD", "https://a/"+string(rune('a'+i))))
	}

	out := Aggregate("neutral", []crawler.SourceResult{okResult(crawler.SourceAmazon, listings...)}, testRates)
	require.Len(t, out.Listings, len(values))
	for _, e := range out.Listings {
		assert.Equal(t, *e.Amount, e.ReferenceAmount)
	}
}

func TestAggregateIndependentOfCompletionOrder(t *testing.T) {
	results := []crawler.SourceResult{
		okResult(crawler.SourceAmazon,
			listing(crawler.SourceAmazon, "A1", 10, "USD", "https://a/1"),
			listing(crawler.SourceAmazon, "A2", 30, "USD", "https://a/2"),
		),
		okResult(crawler.SourceEbay, listing(crawler.SourceEbay, "E1", 10, "USD", "https://e/1")),
		okResult(crawler.SourceJumia, listing(crawler.SourceJumia, "J1", 2600, "KES", "https://j/1")),
		{SourceID: crawler.SourceKilimall, Status: crawler.StatusTimeout, Err: apperrors.NewTimeout("kilimall", 0)},
	}

	want, err := json.Marshal(Aggregate("q", results, testRates).Listings)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]crawler.SourceResult(nil), results...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := json.Marshal(Aggregate("q", shuffled, testRates).Listings)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
		assert.Equal(t, string(want), string(got))
	}
}

func TestAggregateEmptyAndDegraded(t *testing.T) {
	empty := Aggregate("nothing", []crawler.SourceResult{
		{SourceID: crawler.SourceAmazon, Status: crawler.StatusEmpty},
		{SourceID: crawler.SourceEbay, Status: crawler.StatusEmpty},
	}, testRates)
	assert.True(t, empty.Empty())
	assert.False(t, empty.Degraded())
	assert.NotNil(t, empty.Listings)
	assert.Len(t, empty.Sources, 2)

	degraded := Aggregate("down", []crawler.SourceResult{
		{SourceID: crawler.SourceAmazon, Status: crawler.StatusError, Err: errors.New("boom")},
		{SourceID: crawler.SourceEbay, Status: crawler.StatusTimeout, Err: apperrors.NewTimeout("ebay", 0)},
	}, testRates)
	assert.True(t, degraded.Empty())
	assert.True(t, degraded.Degraded())
	assert.Equal(t, "boom", degraded.Sources[0].Error)
	assert.Equal(t, "timeout", degraded.Sources[1].ErrorType)
}
