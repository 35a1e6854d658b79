// Package validator gates every Klarna session call on the merchant
// country / checkout currency pair. The rule table is fixed by Klarna's
// market coverage and is not configurable.
package validator

import (
	"fmt"

	"github.com/yourorg/klarna-payments-gateway/internal/session"
)

// allowedCountries maps each supported checkout currency to the set of
// merchant countries it may be used with. A currency missing from this
// map is not supported at all.
var allowedCountries = map[string][]string{
	"USD": {"US"},
	"GBP": {"GB"},
	"SEK": {"SE"},
	"NOK": {"NO"},
	"DKK": {"DK"},
	"CHF": {"CH"},
	"EUR": {"AT", "DE", "NL", "FI"},
}

// ValidationError reports a currency/country combination Klarna cannot
// serve. The gateway treats it as fail-closed: the payment method
// reports itself unavailable and any stale session is discarded.
type ValidationError struct {
	Currency string
	Country  string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator: %s (currency=%s, country=%s)", e.Reason, e.Currency, e.Country)
}

// Validate checks that the checkout currency is supported and bound to
// the merchant country. It is pure; use Check to also enforce the
// fail-closed session clearing.
func Validate(country, currency string) error {
	countries, ok := allowedCountries[currency]
	if !ok {
		return &ValidationError{
			Currency: currency,
			Country:  country,
			Reason:   "currency not allowed for Klarna Payments",
		}
	}
	for _, c := range countries {
		if c == country {
			return nil
		}
	}
	return &ValidationError{
		Currency: currency,
		Country:  country,
		Reason:   fmt.Sprintf("%s purchases require one of %v", currency, countries),
	}
}

// Check runs Validate and clears the session store on failure so that
// no stale session survives an invalid configuration. It must run
// before every session create/update and is the final availability
// gate for the payment method.
func Check(store session.Store, country, currency string) error {
	if err := Validate(country, currency); err != nil {
		store.Clear()
		return err
	}
	return nil
}
