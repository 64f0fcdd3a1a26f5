// Package price turns scraped price text into an amount and a currency code.
//
// The rules are heuristics tuned on the markup of the supported sources. They
// are best-effort: fused or mangled price fragments cannot always be recovered
// exactly, and the magnitude correction in particular is approximate.
package price

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PlausibilityThreshold is the value above which a parsed price with a
// suspicious fractional part is checked for a misplaced decimal point.
const PlausibilityThreshold = 10000.0

// ErrUnparseable is returned when no number can be read from the price text
var ErrUnparseable = errors.New("price text could not be parsed")

// Normalized is a parsed price
type Normalized struct {
	Amount   float64
	Currency string
}

type currencyMarker struct {
	marker string
	code   string
}

// First match wins, so longer and more specific markers come first.
var currencyMarkers = []currencyMarker{
	{"KSh", "KES"},
	{"Ksh", "KES"},
	{"KES", "KES"},
	{"£", "GBP"},
	{"GBP", "GBP"},
	{"€", "EUR"},
	{"EUR", "EUR"},
	{"USD", "USD"},
	{"US $", "USD"},
	{"$", "USD"},
}

var (
	// exponentToken spans the whole numeric run around an exponent marker
	exponentToken     = regexp.MustCompile(`[\d.,]*\d[eE][+-]?\d+`)
	scientificPattern = regexp.MustCompile(`^\d+(?:\.\d+)?[eE][+-]?\d+$`)
)

// ResolveCurrency returns the currency named by a marker in text, or hint when
// text carries no marker.
func ResolveCurrency(text, hint string) string {
	for _, m := range currencyMarkers {
		if strings.Contains(text, m.marker) {
			return m.code
		}
	}
	return hint
}

// Normalize parses raw price text. hint is the source's default currency and
// is kept unless the text names another one.
func Normalize(raw, hint string) (Normalized, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Normalized{}, ErrUnparseable
	}

	currency := ResolveCurrency(raw, hint)

	// Exponent notation is parsed directly; none of the separator rules apply.
	// The token must be a plain mantissa and exponent with a finite value.
	if tok := exponentToken.FindString(raw); tok != "" {
		if !scientificPattern.MatchString(tok) {
			return Normalized{}, ErrUnparseable
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return Normalized{}, ErrUnparseable
		}
		return Normalized{Amount: v, Currency: currency}, nil
	}

	cleaned := disambiguateSeparators(keepNumeric(raw))
	if cleaned == "" {
		return Normalized{}, ErrUnparseable
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return Normalized{}, ErrUnparseable
	}

	return Normalized{Amount: correctMagnitude(cleaned, value), Currency: currency}, nil
}

// keepNumeric drops everything except digits, '.' and ','.
func keepNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// disambiguateSeparators rewrites s so that '.' is the only separator left and
// marks the decimal point.
//
// With both separators present the rightmost one is the decimal point. With
// only commas, the last comma is a decimal point when at most two digits
// follow it; otherwise all commas are thousands separators.
func disambiguateSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return commaAsDecimal(strings.ReplaceAll(s, ".", ""))
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if len(s)-lastComma-1 <= 2 {
			return commaAsDecimal(s)
		}
		return strings.ReplaceAll(s, ",", "")
	default:
		return s
	}
}

// commaAsDecimal turns the last comma into '.' and removes the others.
func commaAsDecimal(s string) string {
	i := strings.LastIndex(s, ",")
	return strings.ReplaceAll(s[:i], ",", "") + "." + s[i+1:]
}

// correctMagnitude undoes a common rendering artifact where whole and
// fractional price fragments are concatenated ("349" + "639" + ".9"). A decimal
// point is reinserted two digits from the right of the integer part, and the
// candidate is used only if it is below a tenth of the original parse.
//
// A cleaned value whose fraction has exactly two digits, or none, already
// reads as a well-formed price and is left alone.
func correctMagnitude(cleaned string, value float64) float64 {
	if value <= PlausibilityThreshold {
		return value
	}

	whole, frac, found := strings.Cut(cleaned, ".")
	if !found || strings.Contains(frac, ".") {
		return value
	}
	if len(whole) <= 2 || len(frac) == 0 || len(frac) == 2 {
		return value
	}

	candidate, err := strconv.ParseFloat(whole[:len(whole)-2]+"."+whole[len(whole)-2:]+frac, 64)
	if err != nil || candidate >= value/10 {
		return value
	}
	return candidate
}
