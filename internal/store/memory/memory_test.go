package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func newProduct(t *testing.T, s *Store, id string, stock int) domain.Product {
	t.Helper()
	ctx := context.Background()
	created, err := s.CreateProduct(ctx, domain.Product{ID: id, SKU: "SKU-" + id, Name: id, Category: "test", CostPriceCents: 100, RetailPriceCents: 1000, WholesalePriceCents: 700}, nil)
	if err != nil {
		t.Fatalf("create product %s: %v", id, err)
	}
	if stock > 0 {
		if _, _, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: id, Quantity: stock, UnitCostCents: 100}); err != nil {
			t.Fatalf("receive %s: %v", id, err)
		}
	}
	return *created
}

func saleOf(key string, items ...domain.SaleItem) domain.Sale {
	sale := domain.Sale{IdempotencyKey: key, Channel: domain.ChannelRetail, PaymentMethod: domain.PaymentCard, Items: items, TaxRatePercent: decimal.Zero}
	for _, item := range items {
		sale.SubtotalCents += item.SubtotalCents
	}
	sale.TotalCents = sale.SubtotalCents
	return sale
}

func item(productID string, qty int) domain.SaleItem {
	return domain.SaleItem{ProductID: productID, ProductName: productID, Quantity: qty, UnitPriceCents: 1000, SubtotalCents: int64(qty) * 1000}
}

func stockOf(t *testing.T, s *Store, id string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.StockLevel
}

func TestReceiveStockUpdatesLevelAndCost(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)

	receipt, product, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: "p1", Quantity: 5, UnitCostCents: 4})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if product.StockLevel != 15 || product.CostPriceCents != 4 {
		t.Fatalf("expected stock 15 cost 4, got %d / %d", product.StockLevel, product.CostPriceCents)
	}
	if receipt.ID == "" || receipt.ReceivedAt.IsZero() {
		t.Fatalf("expected receipt identity to be filled, got %+v", receipt)
	}

	receipts, err := s.ListReceipts(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 2 || receipts[0].ID != receipt.ID {
		t.Fatalf("expected newest receipt first, got %+v", receipts)
	}
}

func TestReceiveStockRejectsWithoutMutation(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)

	cases := []struct {
		name    string
		receipt domain.InventoryReceipt
		want    error
	}{
		{"zero quantity", domain.InventoryReceipt{ProductID: "p1", Quantity: 0, UnitCostCents: 4}, domain.ErrValidation},
		{"negative cost", domain.InventoryReceipt{ProductID: "p1", Quantity: 1, UnitCostCents: -1}, domain.ErrValidation},
		{"unknown product", domain.InventoryReceipt{ProductID: "nope", Quantity: 1, UnitCostCents: 4}, domain.ErrNotFound},
		{"unknown vendor", domain.InventoryReceipt{ProductID: "p1", VendorID: "ven-x", Quantity: 1, UnitCostCents: 4}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := s.ReceiveStock(ctx, tc.receipt)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := stockOf(t, s, "p1"); got != 10 {
				t.Fatalf("stock changed on rejected receipt: %d", got)
			}
		})
	}
}

func TestCommitSaleIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)
	newProduct(t, s, "p2", 1)

	_, _, err := s.CommitSale(ctx, saleOf("k1", item("p1", 2), item("p2", 3)))
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.ProductID != "p2" || stockErr.Requested != 3 || stockErr.Available != 1 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}
	if got := stockOf(t, s, "p1"); got != 10 {
		t.Fatalf("expected p1 untouched at 10, got %d", got)
	}
	if _, err := s.FindSaleByIdempotency(ctx, "k1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no sale to be recorded, got %v", err)
	}
}

func TestCommitSaleMergesRepeatedLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 5)

	_, _, err := s.CommitSale(ctx, saleOf("k1", item("p1", 3), item("p1", 3)))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected merged quantity 6 to exceed stock 5, got %v", err)
	}

	if _, _, err := s.CommitSale(ctx, saleOf("k2", item("p1", 2), item("p1", 3))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCommitSaleRejectsTamperedTotals(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 5)

	sale := saleOf("k1", item("p1", 2))
	sale.TotalCents = 1
	if _, _, err := s.CommitSale(ctx, sale); !errors.Is(err, domain.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestCommitSaleIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 5)

	first, replayed, err := s.CommitSale(ctx, saleOf("k1", item("p1", 2)))
	if err != nil || replayed {
		t.Fatalf("first commit: replayed=%v err=%v", replayed, err)
	}
	second, replayed, err := s.CommitSale(ctx, saleOf("k1", item("p1", 2)))
	if err != nil || !replayed {
		t.Fatalf("second commit: replayed=%v err=%v", replayed, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same sale, got %s and %s", first.ID, second.ID)
	}
	if got := stockOf(t, s, "p1"); got != 3 {
		t.Fatalf("expected one deduction, stock %d", got)
	}
}

func TestCommitSaleChargesCustomer(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Toko Jaya", Phone: "555", Type: domain.ChannelWholesale, CreditLimitCents: 3000})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	sale := saleOf("k1", item("p1", 2))
	sale.PaymentMethod = domain.PaymentCredit
	sale.CustomerID = customer.ID
	committed, _, err := s.CommitSale(ctx, sale)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.CustomerName != "Toko Jaya" {
		t.Fatalf("expected customer name cached, got %q", committed.CustomerName)
	}
	got, _ := s.GetCustomer(ctx, customer.ID)
	if got.TotalSpentCents != 2000 || got.OutstandingBalanceCents != 2000 {
		t.Fatalf("unexpected customer aggregates: %+v", got)
	}

	over := saleOf("k2", item("p1", 2))
	over.PaymentMethod = domain.PaymentCredit
	over.CustomerID = customer.ID
	if _, _, err := s.CommitSale(ctx, over); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected credit limit rejection, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 8 {
		t.Fatalf("expected stock 8 after rejected credit sale, got %d", got)
	}
}

func TestRefundReturnsStockOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)

	sale, _, err := s.CommitSale(ctx, saleOf("k1", item("p1", 4)))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	at := time.Now().UTC()
	refunded, err := s.RefundSale(ctx, sale.ID, "damaged", at)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.SaleStatusRefunded || refunded.RefundedAt == nil {
		t.Fatalf("unexpected refunded sale: %+v", refunded)
	}
	if got := stockOf(t, s, "p1"); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
	if _, err := s.RefundSale(ctx, sale.ID, "again", at); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second refund to be rejected, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 10 {
		t.Fatalf("expected stock to stay 10, got %d", got)
	}
}

func TestUpdateProductKeepsStockAndCost(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "p1", 7)

	p.Name = "Renamed"
	p.StockLevel = 999
	p.CostPriceCents = 1
	updated, err := s.UpdateProduct(ctx, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.StockLevel != 7 || updated.CostPriceCents != 100 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	s := New()
	newProduct(t, s, "p1", 0)
	_, err := s.CreateProduct(context.Background(), domain.Product{SKU: "SKU-p1", Name: "Other"}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Violations["sku"] != "duplicate" {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
}

func TestCreateProductBooksOpeningStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	created, err := s.CreateProduct(ctx,
		domain.Product{ID: "p1", SKU: "SKU-p1", Name: "p1", CostPriceCents: 100, RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{Quantity: 12, UnitCostCents: 90, BatchNumber: "OPENING"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.StockLevel != 12 || created.CostPriceCents != 90 {
		t.Fatalf("expected stock 12 cost 90, got %d / %d", created.StockLevel, created.CostPriceCents)
	}
	receipts, err := s.ListReceipts(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].BatchNumber != "OPENING" || receipts[0].ProductID != "p1" {
		t.Fatalf("expected one opening receipt, got %+v", receipts)
	}
}

func TestCreateProductRejectedOpeningLeavesNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		opening domain.InventoryReceipt
	}{
		{"vendor on opening", domain.InventoryReceipt{VendorID: "ven-1", Quantity: 5, UnitCostCents: 90}},
		{"negative cost", domain.InventoryReceipt{Quantity: 5, UnitCostCents: -1}},
		{"expired batch", domain.InventoryReceipt{Quantity: 5, UnitCostCents: 90, ExpiryDate: &past}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opening := tc.opening
			_, err := s.CreateProduct(ctx, domain.Product{ID: "p1", SKU: "SKU-p1", Name: "p1", RetailPriceCents: 1000, WholesalePriceCents: 700}, &opening)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, err := s.GetProduct(ctx, "p1"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("product committed without its opening stock: %v", err)
			}
			if receipts, _ := s.ListReceipts(ctx, "p1", 0); len(receipts) != 0 {
				t.Fatalf("expected no receipts, got %+v", receipts)
			}
		})
	}
}

func TestGetProductByCodePrefersBarcode(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	byBarcode, err := s.GetProductByCode(ctx, "8990001000011")
	if err != nil || byBarcode.ID != "prd-rice-5kg" {
		t.Fatalf("barcode lookup: %+v %v", byBarcode, err)
	}
	bySKU, err := s.GetProductByCode(ctx, "OIL-2L")
	if err != nil || bySKU.ID != "prd-oil-2l" {
		t.Fatalf("sku lookup: %+v %v", bySKU, err)
	}
	if _, err := s.GetProductByCode(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 20)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.CommitSale(ctx, saleOf("k-"+strconv.Itoa(i), item("p1", 1)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 20 {
		t.Fatalf("expected exactly 20 sales, got %d", succeeded)
	}
	if got := stockOf(t, s, "p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestSnapshotFiltersSalesByWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	newProduct(t, s, "p1", 10)

	early := saleOf("k1", item("p1", 1))
	early.CreatedAt = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := saleOf("k2", item("p1", 1))
	late.CreatedAt = time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	for _, sale := range []domain.Sale{early, late} {
		if _, _, err := s.CommitSale(ctx, sale); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	snap, err := s.Snapshot(ctx, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Sales) != 1 || snap.Sales[0].IdempotencyKey != "k2" {
		t.Fatalf("expected only the late sale, got %+v", snap.Sales)
	}
	if len(snap.Products) != 1 || snap.Products[0].StockLevel != 8 {
		t.Fatalf("unexpected products in snapshot: %+v", snap.Products)
	}
}

func TestSettingsNotFoundUntilSaved(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.GetSettings(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	saved, err := s.SaveSettings(ctx, domain.DefaultSettings(decimal.NewFromInt(11)))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetSettings(ctx)
	if err != nil || !got.TaxRatePercent.Equal(saved.TaxRatePercent) {
		t.Fatalf("expected saved rate, got %+v %v", got, err)
	}
	if _, err := s.SaveSettings(ctx, domain.DefaultSettings(decimal.NewFromInt(101))); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected rate validation, got %v", err)
	}
}

func TestUsersAreCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateUser(ctx, domain.UserAccount{Username: " Kasir1 ", Password: "hash"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "kasir1", Password: "hash"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	user, err := s.GetUser(ctx, "KASIR1")
	if err != nil || user.Role != domain.RoleCashier || !user.Active {
		t.Fatalf("unexpected user: %+v %v", user, err)
	}
}
