// Package config holds static gateway configuration: merchant
// credentials, environment selection, and the iframe display options
// merged into Klarna session requests.
package config

import (
	"fmt"
	"os"
)

// Environment selects which Klarna API the gateway talks to.
type Environment string

const (
	EnvironmentPlayground Environment = "playground"
	EnvironmentProduction Environment = "production"
)

// StyleOptions are the recognized iframe display options. Only fields
// that are set are merged into the outgoing session request; Klarna
// ignores keys it does not recognize, so the set is enumerated here
// rather than carried as a free-form bag.
type StyleOptions struct {
	ColorButton            string
	ColorButtonText        string
	ColorCheckbox          string
	ColorCheckboxCheckmark string
	ColorHeader            string
	ColorLink              string
	ColorBorder            string
	ColorBorderSelected    string
	ColorText              string
	ColorDetails           string
	ColorTextSecondary     string
	// RadiusBorder is a bare number; it is serialized with a px suffix.
	RadiusBorder string
}

// Options returns the non-empty style options as the map Klarna expects
// under the request body's "options" key. Returns nil when nothing is
// configured so callers can skip the merge entirely.
func (s StyleOptions) Options() map[string]interface{} {
	options := make(map[string]interface{})

	set := func(key, value string) {
		if value != "" {
			options[key] = value
		}
	}
	set("color_button", s.ColorButton)
	set("color_button_text", s.ColorButtonText)
	set("color_checkbox", s.ColorCheckbox)
	set("color_checkbox_checkmark", s.ColorCheckboxCheckmark)
	set("color_header", s.ColorHeader)
	set("color_link", s.ColorLink)
	set("color_border", s.ColorBorder)
	set("color_border_selected", s.ColorBorderSelected)
	set("color_text", s.ColorText)
	set("color_details", s.ColorDetails)
	set("color_text_secondary", s.ColorTextSecondary)
	if s.RadiusBorder != "" {
		options["radius_border"] = s.RadiusBorder + "px"
	}

	if len(options) == 0 {
		return nil
	}
	return options
}

// Config is the resolved gateway configuration for one merchant shop.
type Config struct {
	Enabled      bool
	Title        string
	MerchantID   string
	SharedSecret string
	Environment  Environment
	// Country is the merchant's Klarna market (two-letter code).
	Country string
	// Currency is the shop's checkout currency.
	Currency string
	Locale   string
	Style    StyleOptions
}

// HasCredentials reports whether both credential halves are configured.
// Without them the payment method never offers itself.
func (c Config) HasCredentials() bool {
	return c.MerchantID != "" && c.SharedSecret != ""
}

// FromEnv builds a Config from environment variables. Used by
// cmd/server; tests construct Config literals directly.
func FromEnv() (Config, error) {
	cfg := Config{
		Enabled:      true,
		Title:        "Klarna Payments",
		MerchantID:   os.Getenv("KLARNA_MERCHANT_ID"),
		SharedSecret: os.Getenv("KLARNA_SHARED_SECRET"),
		Environment:  EnvironmentPlayground,
		Country:      os.Getenv("KLARNA_COUNTRY"),
		Currency:     os.Getenv("KLARNA_CURRENCY"),
		Locale:       os.Getenv("KLARNA_LOCALE"),
	}
	if os.Getenv("KLARNA_ENV") == string(EnvironmentProduction) {
		cfg.Environment = EnvironmentProduction
	}
	if cfg.Country == "" || cfg.Currency == "" {
		return Config{}, fmt.Errorf("config: KLARNA_COUNTRY and KLARNA_CURRENCY are required")
	}
	return cfg, nil
}
