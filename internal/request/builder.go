// Package request assembles Klarna session request bodies from the
// merchant configuration and a snapshot of the active cart.
package request

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yourorg/klarna-payments-gateway/internal/config"
	"github.com/yourorg/klarna-payments-gateway/internal/klarna"
)

// CartLine is one cart item. UnitPrice is tax inclusive, in minor
// units; TaxRate is in hundredths of a percent (2500 = 25%).
type CartLine struct {
	Reference string
	Name      string
	Quantity  int64
	UnitPrice int64
	TaxRate   int64
}

// Cart is the snapshot a session request is built from. It captures
// one cart state; any cart change requires a fresh snapshot and a
// session update.
type Cart struct {
	Lines []CartLine
}

// lineTotals computes the tax-inclusive total and the contained tax for
// one line, using Klarna's convention for tax-inclusive pricing.
func lineTotals(l CartLine) (total, tax int64) {
	total = l.Quantity * l.UnitPrice
	tax = total - (total*10000)/(10000+l.TaxRate)
	return total, tax
}

// Builder constructs session requests for one merchant shop.
type Builder struct {
	cfg config.Config
}

// NewBuilder creates a Builder for cfg.
func NewBuilder(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build produces the create/update session body for the cart snapshot.
// The purchase country and currency come from the merchant config; the
// validator has already gated them. An empty cart, a non-positive
// quantity, or a negative price or tax rate is an error.
func (b *Builder) Build(ctx context.Context, cart Cart) (klarna.SessionRequest, error) {
	tracer := otel.Tracer("request")
	_, span := tracer.Start(ctx, "Builder.Build")
	defer span.End()

	if len(cart.Lines) == 0 {
		return klarna.SessionRequest{}, fmt.Errorf("request: cart has no lines")
	}

	req := klarna.SessionRequest{
		PurchaseCountry:   b.cfg.Country,
		PurchaseCurrency:  b.cfg.Currency,
		Locale:            b.cfg.Locale,
		MerchantReference: uuid.NewString(),
	}

	for i, l := range cart.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 || l.TaxRate < 0 {
			return klarna.SessionRequest{}, fmt.Errorf("request: invalid cart line %d (quantity=%d, unit_price=%d, tax_rate=%d)", i, l.Quantity, l.UnitPrice, l.TaxRate)
		}
		total, tax := lineTotals(l)
		req.OrderLines = append(req.OrderLines, klarna.OrderLine{
			Type:           "physical",
			Reference:      l.Reference,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			TaxRate:        l.TaxRate,
			TotalAmount:    total,
			TotalTaxAmount: tax,
		})
		req.OrderAmount += total
		req.OrderTaxAmount += tax
	}

	return req, nil
}
