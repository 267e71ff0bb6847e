package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeTax returns baseCents * ratePercent / 100 rounded half away from zero.
func ComputeTax(baseCents int64, ratePercent decimal.Decimal) int64 {
	if baseCents <= 0 || !ratePercent.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(baseCents).Mul(ratePercent).Div(hundred).Round(0).IntPart()
}

// taxRatePlaces matches the NUMERIC(7,4) rate columns.
const taxRatePlaces = 4

// ValidTaxRate reports whether the rate lies in [0, 100] and fits in
// taxRatePlaces decimal places, so it is stored without rounding.
func ValidTaxRate(ratePercent decimal.Decimal) bool {
	return !ratePercent.IsNegative() && ratePercent.LessThanOrEqual(hundred) &&
		ratePercent.Equal(ratePercent.Truncate(taxRatePlaces))
}

// Reconcile checks that every amount on the sale is derived from its lines:
// line subtotal = quantity * unit price, subtotal = sum of lines,
// total = subtotal - discount, tax = ComputeTax(total, rate).
func (s Sale) Reconcile() error {
	if len(s.Items) == 0 {
		return Invalid("items", "required")
	}
	sum := int64(0)
	for _, item := range s.Items {
		if item.Quantity < 1 {
			return Invalid("items.quantity", "must_be_positive")
		}
		if item.UnitPriceCents < 0 {
			return Invalid("items.unit_price_cents", "must_not_be_negative")
		}
		expected := int64(item.Quantity) * item.UnitPriceCents
		if item.SubtotalCents != expected {
			return &ConsistencyError{Field: "items.subtotal_cents", Expected: expected, Actual: item.SubtotalCents}
		}
		sum += expected
	}
	if s.SubtotalCents != sum {
		return &ConsistencyError{Field: "subtotal_cents", Expected: sum, Actual: s.SubtotalCents}
	}
	if s.DiscountCents < 0 || s.DiscountCents > s.SubtotalCents {
		return Invalid("discount_cents", "out_of_range")
	}
	if expected := s.SubtotalCents - s.DiscountCents; s.TotalCents != expected {
		return &ConsistencyError{Field: "total_cents", Expected: expected, Actual: s.TotalCents}
	}
	if expected := ComputeTax(s.TotalCents, s.TaxRatePercent); s.TaxCents != expected {
		return &ConsistencyError{Field: "tax_cents", Expected: expected, Actual: s.TaxCents}
	}
	return nil
}
