package orders

import (
	"github.com/shopspring/decimal"

	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
)

// PriceBreakdown is the monetary snapshot stamped onto an order at
// creation. It is never recomputed from items afterwards.
type PriceBreakdown struct {
	SubtotalCents int
	ShippingCents int
	TaxCents      int
	DiscountCents int
	TotalCents    int
}

// Pricer applies the fixed pricing constants to a basket.
type Pricer struct {
	shippingFlatCents      int64
	taxRate                decimal.Decimal
	discountThresholdCents int64
	discountCents          int64
}

// NewPricer validates the configured tax rate and returns a pricer.
func NewPricer(cfg config.PricingConfig) (*Pricer, error) {
	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}
	return &Pricer{
		shippingFlatCents:      cfg.ShippingFlatCents,
		taxRate:                rate,
		discountThresholdCents: cfg.DiscountThresholdCents,
		discountCents:          cfg.DiscountCents,
	}, nil
}

// Price computes the breakdown for the given items. Tax is rounded
// half-up on the subtotal; the discount applies only above the threshold.
func (p *Pricer) Price(items []models.OrderItem) PriceBreakdown {
	subtotal := 0
	for _, item := range items {
		subtotal += item.LineTotalCents()
	}

	tax := decimal.NewFromInt(int64(subtotal)).
		Mul(p.taxRate).
		Round(0).
		IntPart()

	discount := int64(0)
	if int64(subtotal) > p.discountThresholdCents {
		discount = p.discountCents
	}

	total := int64(subtotal) + p.shippingFlatCents + tax - discount

	return PriceBreakdown{
		SubtotalCents: subtotal,
		ShippingCents: int(p.shippingFlatCents),
		TaxCents:      int(tax),
		DiscountCents: int(discount),
		TotalCents:    int(total),
	}
}
