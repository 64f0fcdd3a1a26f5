package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoRate is returned when a currency has no rate against the reference
var ErrNoRate = errors.New("no exchange rate for currency")

// ExchangeRates holds, per quote currency, the units of that currency worth one
// unit of the reference currency. It is read-only for the duration of a run.
type ExchangeRates struct {
	Reference    string             `json:"reference"`
	PerReference map[string]float64 `json:"per_reference"`
}

// SingleRate builds rates for one quote currency
func SingleRate(reference, quote string, rate float64) ExchangeRates {
	return ExchangeRates{
		Reference:    reference,
		PerReference: map[string]float64{quote: rate},
	}
}

// Validate rejects rates that cannot be used for conversion
func (r ExchangeRates) Validate() error {
	if len(r.Reference) != 3 {
		return fmt.Errorf("reference currency %q is not a 3-letter code", r.Reference)
	}
	for code, rate := range r.PerReference {
		if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("rate for %s must be a positive number, got %v", code, rate)
		}
	}
	return nil
}

// Convert expresses amount in the reference currency. An amount already in the
// reference currency is returned unchanged.
func (r ExchangeRates) Convert(amount float64, currency string) (float64, error) {
	if strings.EqualFold(currency, r.Reference) {
		return amount, nil
	}

	rate, ok := r.PerReference[strings.ToUpper(currency)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: %s per %s", ErrNoRate, currency, r.Reference)
	}
	return amount / rate, nil
}

// With returns a copy of r with the given rates layered on top
func (r ExchangeRates) With(overrides map[string]float64) ExchangeRates {
	merged := make(map[string]float64, len(r.PerReference)+len(overrides))
	for code, rate := range r.PerReference {
		merged[code] = rate
	}
	for code, rate := range overrides {
		merged[strings.ToUpper(code)] = rate
	}
	return ExchangeRates{Reference: r.Reference, PerReference: merged}
}
