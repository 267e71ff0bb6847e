package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func reconciledSale() Sale {
	return Sale{
		Items: []SaleItem{
			{ProductID: "prd-a", ProductName: "Rice 5kg", Quantity: 2, UnitPriceCents: 700, SubtotalCents: 1400},
			{ProductID: "prd-b", ProductName: "Sugar 1kg", Quantity: 1, UnitPriceCents: 250, SubtotalCents: 250},
		},
		SubtotalCents:  1650,
		DiscountCents:  50,
		TotalCents:     1600,
		TaxRatePercent: decimal.NewFromInt(10),
		TaxCents:       160,
	}
}

func TestReconcileAcceptsDerivedAmounts(t *testing.T) {
	if err := reconciledSale().Reconcile(); err != nil {
		t.Fatalf("expected sale to reconcile, got %v", err)
	}
}

func TestReconcileRejectsTamperedTotal(t *testing.T) {
	sale := reconciledSale()
	sale.TotalCents = 1650

	err := sale.Reconcile()
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	var ce *ConsistencyError
	if !errors.As(err, &ce) || ce.Field != "total_cents" || ce.Expected != 1600 {
		t.Fatalf("unexpected consistency detail: %+v", ce)
	}
}

func TestReconcileRejectsLineSubtotalDrift(t *testing.T) {
	sale := reconciledSale()
	sale.Items[0].SubtotalCents = 1500

	if err := sale.Reconcile(); !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestReconcileRejectsDiscountAboveSubtotal(t *testing.T) {
	sale := reconciledSale()
	sale.DiscountCents = 2000
	sale.TotalCents = -350

	if err := sale.Reconcile(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeTaxRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		base int64
		rate string
		want int64
	}{
		{base: 14, rate: "10", want: 1},
		{base: 15, rate: "10", want: 2},
		{base: 1999, rate: "11", want: 220},
		{base: 1000, rate: "0", want: 0},
		{base: 0, rate: "10", want: 0},
	}
	for _, tc := range cases {
		got := ComputeTax(tc.base, decimal.RequireFromString(tc.rate))
		if got != tc.want {
			t.Fatalf("ComputeTax(%d, %s) = %d, want %d", tc.base, tc.rate, got, tc.want)
		}
	}
}

func TestValidTaxRate(t *testing.T) {
	cases := []struct {
		rate string
		want bool
	}{
		{"0", true},
		{"100", true},
		{"12.3456", true},
		{"12.34560000", true},
		{"12.34567", false},
		{"0.00001", false},
		{"-0.5", false},
		{"100.0001", false},
	}
	for _, tc := range cases {
		if got := ValidTaxRate(decimal.RequireFromString(tc.rate)); got != tc.want {
			t.Fatalf("ValidTaxRate(%s) = %v, want %v", tc.rate, got, tc.want)
		}
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	if !errors.Is(NotFound("product", "prd-x"), ErrNotFound) {
		t.Fatalf("expected not found sentinel")
	}
	if !errors.Is(&InsufficientStockError{ProductID: "prd-x", Requested: 3, Available: 1}, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock sentinel")
	}
	v := Violations{}
	v.Required("name", " ")
	v.Positive("quantity", 0)
	err := v.Err()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation sentinel, got %v", err)
	}
	if err.Error() != "validation failed: name: required, quantity: must_be_positive" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if (Violations{}).Err() != nil {
		t.Fatalf("expected nil error for empty violations")
	}
}
