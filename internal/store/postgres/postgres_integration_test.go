package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("GROSIRPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GROSIRPOS_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func createStockedProduct(t *testing.T, s *Store, stockLevel int) domain.Product {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	product, err := s.CreateProduct(ctx, domain.Product{
		SKU:                 fmt.Sprintf("SKU-IT-%d", stamp),
		Name:                "Produk IT",
		Category:            "test",
		Unit:                "pcs",
		CostPriceCents:      500,
		RetailPriceCents:    1000,
		WholesalePriceCents: 700,
	}, nil)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_receipts WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})
	if stockLevel > 0 {
		if _, _, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: product.ID, Quantity: stockLevel, UnitCostCents: 500}); err != nil {
			t.Fatalf("receive stock: %v", err)
		}
	}
	return *product
}

func singleLineSale(key string, p domain.Product, qty int) domain.Sale {
	subtotal := p.RetailPriceCents * int64(qty)
	return domain.Sale{
		IdempotencyKey: key,
		TerminalID:     "it-terminal",
		Channel:        domain.ChannelRetail,
		PaymentMethod:  domain.PaymentCard,
		Items: []domain.SaleItem{{
			ProductID: p.ID, ProductName: p.Name, Quantity: qty,
			UnitPriceCents: p.RetailPriceCents, SubtotalCents: subtotal,
		}},
		SubtotalCents:  subtotal,
		TotalCents:     subtotal,
		TaxRatePercent: decimal.Zero,
	}
}

func cleanupSale(t *testing.T, s *Store, key string) {
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM sales WHERE idempotency_key = $1`, key)
	})
}

func TestCreateProductBooksOpeningReceiptInSameTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	sku := fmt.Sprintf("SKU-OPEN-%d", stamp)

	product, err := s.CreateProduct(ctx,
		domain.Product{SKU: sku, Name: "Produk Awal", Unit: "pcs", CostPriceCents: 500, RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{Quantity: 6, UnitCostCents: 450, BatchNumber: "OPENING"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_receipts WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})
	if product.StockLevel != 6 || product.CostPriceCents != 450 {
		t.Fatalf("expected stock 6 cost 450, got %d / %d", product.StockLevel, product.CostPriceCents)
	}
	receipts, err := s.ListReceipts(ctx, product.ID, 0)
	if err != nil || len(receipts) != 1 || receipts[0].BatchNumber != "OPENING" {
		t.Fatalf("expected one opening receipt, got %+v %v", receipts, err)
	}

	dupID := fmt.Sprintf("prd-dup-%d", stamp)
	_, err = s.CreateProduct(ctx,
		domain.Product{ID: dupID, SKU: sku, Name: "dup", RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{Quantity: 6, UnitCostCents: 450})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
	if receipts, _ := s.ListReceipts(ctx, dupID, 0); len(receipts) != 0 {
		t.Fatalf("opening receipt committed without its product: %+v", receipts)
	}
}

func TestCommitSaleDeductsAndReplaysIdempotently(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := createStockedProduct(t, s, 10)

	key := fmt.Sprintf("idem-it-%d", time.Now().UnixNano())
	cleanupSale(t, s, key)

	sale, replayed, err := s.CommitSale(ctx, singleLineSale(key, p, 4))
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if replayed {
		t.Fatalf("first commit reported as replay")
	}

	again, replayed, err := s.CommitSale(ctx, singleLineSale(key, p, 4))
	if err != nil {
		t.Fatalf("replay sale: %v", err)
	}
	if !replayed || again.ID != sale.ID {
		t.Fatalf("expected replay of %s, got %s replayed=%v", sale.ID, again.ID, replayed)
	}
	if len(again.Items) != 1 || again.Items[0].Quantity != 4 {
		t.Fatalf("unexpected replayed items %+v", again.Items)
	}

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.StockLevel != 6 {
		t.Fatalf("expected stock 6 after one deduction, got %d", after.StockLevel)
	}
}

func TestCommitSaleRejectsOversellWithoutPartialWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	plenty := createStockedProduct(t, s, 10)
	short := createStockedProduct(t, s, 1)

	key := fmt.Sprintf("idem-it-short-%d", time.Now().UnixNano())
	cleanupSale(t, s, key)

	sale := singleLineSale(key, plenty, 3)
	extra := singleLineSale(key, short, 2)
	sale.Items = append(sale.Items, extra.Items...)
	sale.SubtotalCents += extra.SubtotalCents
	sale.TotalCents = sale.SubtotalCents

	_, _, err := s.CommitSale(ctx, sale)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	after, err := s.GetProduct(ctx, plenty.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.StockLevel != 10 {
		t.Fatalf("expected untouched stock 10, got %d", after.StockLevel)
	}
	if _, err := s.FindSaleByIdempotency(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no sale row, got %v", err)
	}
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := createStockedProduct(t, s, 5)

	stamp := time.Now().UnixNano()
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("idem-it-race-%d-%d", stamp, i)
		cleanupSale(t, s, key)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.CommitSale(ctx, singleLineSale(key, p, 1)); err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.StockLevel < 0 || committed+after.StockLevel != 5 {
		t.Fatalf("committed %d sales but stock is %d", committed, after.StockLevel)
	}
}

func TestRefundRestocksOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := createStockedProduct(t, s, 10)

	key := fmt.Sprintf("idem-it-refund-%d", time.Now().UnixNano())
	cleanupSale(t, s, key)

	sale, _, err := s.CommitSale(ctx, singleLineSale(key, p, 3))
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	refunded, err := s.RefundSale(ctx, sale.ID, "damaged", time.Now().UTC())
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.SaleStatusRefunded {
		t.Fatalf("expected refunded status, got %s", refunded.Status)
	}
	if _, err := s.RefundSale(ctx, sale.ID, "again", time.Now().UTC()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second refund to fail validation, got %v", err)
	}

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.StockLevel != 10 {
		t.Fatalf("expected stock restored to 10, got %d", after.StockLevel)
	}
}

func TestSnapshotWindowIsHalfOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := createStockedProduct(t, s, 2)

	key := fmt.Sprintf("idem-it-snap-%d", time.Now().UnixNano())
	cleanupSale(t, s, key)
	sale, _, err := s.CommitSale(ctx, singleLineSale(key, p, 1))
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}

	snap, err := s.Snapshot(ctx, sale.CreatedAt, sale.CreatedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	found := false
	for _, got := range snap.Sales {
		if got.ID == sale.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sale %s inside snapshot window", sale.ID)
	}

	snap, err = s.Snapshot(ctx, sale.CreatedAt.Add(-time.Second), sale.CreatedAt)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, got := range snap.Sales {
		if got.ID == sale.ID {
			t.Fatalf("sale at the exclusive upper bound leaked into snapshot")
		}
	}
}
