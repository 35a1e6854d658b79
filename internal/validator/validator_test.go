package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/klarna-payments-gateway/internal/session"
)

func TestValidate_AllowedPairs(t *testing.T) {
	pairs := []struct {
		country  string
		currency string
	}{
		{"US", "USD"},
		{"GB", "GBP"},
		{"SE", "SEK"},
		{"NO", "NOK"},
		{"DK", "DKK"},
		{"CH", "CHF"},
		{"AT", "EUR"},
		{"DE", "EUR"},
		{"NL", "EUR"},
		{"FI", "EUR"},
	}
	for _, p := range pairs {
		t.Run(p.country+"_"+p.currency, func(t *testing.T) {
			assert.NoError(t, Validate(p.country, p.currency))
		})
	}
}

func TestValidate_RejectedPairs(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		currency string
	}{
		{"UnsupportedCurrency", "US", "JPY"},
		{"EmptyCurrency", "US", ""},
		{"USDOutsideUS", "SE", "USD"},
		{"GBPOutsideGB", "US", "GBP"},
		{"SEKOutsideSE", "NO", "SEK"},
		{"NOKOutsideNO", "SE", "NOK"},
		{"DKKOutsideDK", "DE", "DKK"},
		{"CHFOutsideCH", "AT", "CHF"},
		{"EURInNonEUCountry", "US", "EUR"},
		{"EURInSweden", "SE", "EUR"},
		{"LowercaseCountryNotAccepted", "us", "USD"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.country, tc.currency)
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.currency, verr.Currency)
			assert.Equal(t, tc.country, verr.Country)
		})
	}
}

func TestCheck_ClearsStoreOnFailure(t *testing.T) {
	store := session.NewMemoryStore()
	store.Set(session.Session{SessionID: "s1", ClientToken: "t1"})

	err := Check(store, "US", "EUR")
	require.Error(t, err)

	_, ok := store.Get()
	assert.False(t, ok, "stale session must not survive a validation failure")
}

func TestCheck_LeavesStoreOnSuccess(t *testing.T) {
	store := session.NewMemoryStore()
	store.Set(session.Session{SessionID: "s1", ClientToken: "t1"})

	require.NoError(t, Check(store, "DE", "EUR"))

	got, ok := store.Get()
	assert.True(t, ok, "valid pair must not touch the session store")
	assert.Equal(t, "s1", got.SessionID)
}
