package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		hint     string
		amount   float64
		currency string
	}{
		{name: "us format keeps hint", raw: "1,234.56", hint: "USD", amount: 1234.56, currency: "USD"},
		{name: "eu format", raw: "1.234,56", hint: "EUR", amount: 1234.56, currency: "EUR"},
		{name: "shilling thousands", raw: "KSh 3,500", hint: "USD", amount: 3500, currency: "KES"},
		{name: "scientific notation", raw: "3.4963e+4", hint: "USD", amount: 34963.0, currency: "USD"},
		{name: "scientific with marker", raw: "KSh 2.5E3", hint: "USD", amount: 2500, currency: "KES"},
		{name: "negative exponent", raw: "1.5e-1", hint: "USD", amount: 0.15, currency: "USD"},
		{name: "decimal comma", raw: "34,96", hint: "EUR", amount: 34.96, currency: "EUR"},
		{name: "single digit after comma", raw: "12,5", hint: "EUR", amount: 12.5, currency: "EUR"},
		{name: "dollar symbol", raw: "$19.99", hint: "KES", amount: 19.99, currency: "USD"},
		{name: "pound symbol", raw: "£7.50", hint: "USD", amount: 7.5, currency: "GBP"},
		{name: "euro code", raw: "EUR 1.299,00", hint: "USD", amount: 1299, currency: "EUR"},
		{name: "no separators", raw: "KES 899", hint: "KES", amount: 899, currency: "KES"},
		{name: "repeated thousands", raw: "1,234,567", hint: "KES", amount: 1234567, currency: "KES"},
		{name: "mixed eu thousands", raw: "1.234.567,89", hint: "EUR", amount: 1234567.89, currency: "EUR"},
		{name: "trailing whole marker", raw: "349.", hint: "USD", amount: 349, currency: "USD"},
		{name: "surrounding text", raw: "  Now only KSh 1,299  ", hint: "KES", amount: 1299, currency: "KES"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, tc.hint)
			require.NoError(t, err)
			assert.InDelta(t, tc.amount, got.Amount, 1e-9)
			assert.Equal(t, tc.currency, got.Currency)
		})
	}
}

func TestNormalizeFailures(t *testing.T) {
	for _, raw := range []string{"", "   ", "Price on request", "1.234.567", "$20.00 to $30.00", "."} {
		_, err := Normalize(raw, "USD")
		assert.ErrorIs(t, err, ErrUnparseable, "raw=%q", raw)
	}
}

func TestNormalizeExponentNeedsWholeToken(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "thousands separator before mantissa", raw: "1,234e5"},
		{name: "grouped mantissa with decimals", raw: "$1,234.5e2"},
		{name: "overflows to infinity", raw: "1e999"},
		{name: "overflow with marker", raw: "KSh 9.9e400"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, "USD")
			assert.ErrorIs(t, err, ErrUnparseable)
			assert.Zero(t, got.Amount)
		})
	}
}

func TestNormalizeMagnitudeCorrection(t *testing.T) {
	// Fused fragments: the fraction is not a cents pair and the value is implausible.
	got, err := Normalize("349639.9", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 3496.399, got.Amount, 1e-9)

	got, err = Normalize("12345.678", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 123.45678, got.Amount, 1e-9)
}

func TestNormalizeMagnitudeUntouched(t *testing.T) {
	testCases := []struct {
		raw    string
		amount float64
	}{
		{raw: "34963.99", amount: 34963.99},   // well-formed cents
		{raw: "34963", amount: 34963},         // no decimal point
		{raw: "34,963", amount: 34963},        // thousands comma only
		{raw: "9999.9", amount: 9999.9},       // below threshold
		{raw: "12,345.", amount: 12345},       // trailing whole marker
		{raw: "KSh 35,000.00", amount: 35000}, // both separators, cents
		{raw: "3.4963e+4", amount: 34963},     // exponent bailout
	}

	for _, tc := range testCases {
		got, err := Normalize(tc.raw, "USD")
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.amount, got.Amount, tc.raw)
	}
}

func TestCorrectMagnitudeGuard(t *testing.T) {
	// Candidate not below a tenth of the value is rejected.
	assert.Equal(t, 10001.0, correctMagnitude("99999999.5", 10001))
	assert.InDelta(t, 100.015, correctMagnitude("10001.5", 20000), 1e-9)
	assert.Equal(t, 5000.0, correctMagnitude("10001.5", 5000))
}

func TestResolveCurrency(t *testing.T) {
	assert.Equal(t, "KES", ResolveCurrency("Ksh 1,000", "USD"))
	assert.Equal(t, "KES", ResolveCurrency("KES 1,000", "USD"))
	assert.Equal(t, "EUR", ResolveCurrency("12,00 €", "USD"))
	assert.Equal(t, "GBP", ResolveCurrency("GBP 5", "USD"))
	assert.Equal(t, "KES", ResolveCurrency("1,000", "KES"))
}
