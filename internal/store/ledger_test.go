package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"grosirpos/backend/internal/domain"
)

func TestChargeCustomerRespectsCreditLimit(t *testing.T) {
	c := domain.Customer{Name: "Toko", CreditLimitCents: 1000, OutstandingBalanceCents: 600}
	sale := domain.Sale{PaymentMethod: domain.PaymentCredit, TotalCents: 300, TaxCents: 30}
	if err := ChargeCustomer(&c, &sale); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if c.OutstandingBalanceCents != 930 || c.TotalSpentCents != 330 || sale.CustomerName != "Toko" {
		t.Fatalf("unexpected customer after charge: %+v", c)
	}

	next := domain.Sale{PaymentMethod: domain.PaymentCredit, TotalCents: 100}
	if err := ChargeCustomer(&c, &next); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected credit limit error, got %v", err)
	}
	if c.OutstandingBalanceCents != 930 {
		t.Fatalf("rejected charge changed balance: %d", c.OutstandingBalanceCents)
	}
}

func TestChargeCustomerCashLeavesBalance(t *testing.T) {
	c := domain.Customer{Name: "Walk-in"}
	sale := domain.Sale{PaymentMethod: domain.PaymentCash, TotalCents: 5000}
	if err := ChargeCustomer(&c, &sale); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if c.OutstandingBalanceCents != 0 || c.TotalSpentCents != 5000 {
		t.Fatalf("unexpected customer: %+v", c)
	}
}

func TestPrepareSaleFillsIdentity(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		IdempotencyKey: "k",
		Channel:        domain.ChannelRetail,
		PaymentMethod:  domain.PaymentCash,
		Items:          []domain.SaleItem{{ProductID: "p", Quantity: 2, UnitPriceCents: 50, SubtotalCents: 100}},
		SubtotalCents:  100,
		TotalCents:     100,
	}
	if err := PrepareSale(&sale, now); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.HasPrefix(sale.ID, "sale-") || !sale.CreatedAt.Equal(now) || sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("unexpected prepared sale: %+v", sale)
	}

	bad := sale
	bad.ID = ""
	bad.PaymentMethod = domain.PaymentCredit
	if err := PrepareSale(&bad, now); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected credit without customer to fail, got %v", err)
	}
}

func TestPrepareRefundOnlyFromCompleted(t *testing.T) {
	at := time.Now().UTC()
	sale := domain.Sale{Status: domain.SaleStatusCompleted}
	if err := PrepareRefund(&sale, "  ", at); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected reason required, got %v", err)
	}
	if err := PrepareRefund(&sale, "broken seal", at); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := PrepareRefund(&sale, "again", at); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected refunded sale to be rejected, got %v", err)
	}
}

func TestMergeProductUpdateKeepsLedgerFields(t *testing.T) {
	current := domain.Product{ID: "p", SKU: "A", Name: "Old", StockLevel: 9, CostPriceCents: 40}
	next := domain.Product{ID: "p", SKU: "B", Name: "New", StockLevel: 1, CostPriceCents: 1, RetailPriceCents: 70}
	merged, err := MergeProductUpdate(current, next, time.Now())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.StockLevel != 9 || merged.CostPriceCents != 40 || merged.SKU != "B" || merged.RetailPriceCents != 70 {
		t.Fatalf("unexpected merge: %+v", merged)
	}
}

func TestInRangeOpenBounds(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !InRange(t0, time.Time{}, time.Time{}) {
		t.Fatal("expected open range to include everything")
	}
	if !InRange(t0, t0, t0.Add(time.Second)) {
		t.Fatal("expected lower bound to be inclusive")
	}
	if InRange(t0, t0.Add(-time.Hour), t0) {
		t.Fatal("expected upper bound to be exclusive")
	}
}
