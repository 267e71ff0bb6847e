package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := Open(DriverSQLite, dsn, Options{AutoMigrate: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func seedProduct(t *testing.T, s *Store, id string, barcode string, stockLevel int) domain.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, domain.Product{
		ID: id, SKU: "SKU-" + id, Barcode: barcode, Name: id, Category: "test", Unit: "pcs",
		CostPriceCents: 100, RetailPriceCents: 1000, WholesalePriceCents: 700,
	}, nil)
	if err != nil {
		t.Fatalf("create product %s: %v", id, err)
	}
	if stockLevel > 0 {
		if _, _, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: id, Quantity: stockLevel, UnitCostCents: 100}); err != nil {
			t.Fatalf("receive %s: %v", id, err)
		}
	}
	return *p
}

func lineFor(p domain.Product, qty int) domain.SaleItem {
	return domain.SaleItem{
		ProductID: p.ID, ProductName: p.Name, Quantity: qty,
		UnitPriceCents: p.RetailPriceCents, SubtotalCents: p.RetailPriceCents * int64(qty),
	}
}

func saleOf(key string, items ...domain.SaleItem) domain.Sale {
	sale := domain.Sale{IdempotencyKey: key, Channel: domain.ChannelRetail, PaymentMethod: domain.PaymentCard, Items: items, TaxRatePercent: decimal.Zero}
	for _, item := range items {
		sale.SubtotalCents += item.SubtotalCents
	}
	sale.TotalCents = sale.SubtotalCents
	return sale
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
	s := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "p1", "", 10)

	expiry := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	receipt, product, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: "p1", Quantity: 5, UnitCostCents: 400, BatchNumber: "B-7", ExpiryDate: &expiry})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if product.StockLevel != 15 || product.CostPriceCents != 400 {
		t.Fatalf("expected stock 15 at cost 400, got %d at %d", product.StockLevel, product.CostPriceCents)
	}

	receipts, err := s.ListReceipts(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 2 || receipts[0].ID != receipt.ID {
		t.Fatalf("expected newest receipt first, got %+v", receipts)
	}
	if receipts[0].ExpiryDate == nil || !receipts[0].ExpiryDate.Equal(expiry) {
		t.Fatalf("expiry not persisted: %+v", receipts[0].ExpiryDate)
	}

	if _, _, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: "p1", Quantity: 0, UnitCostCents: 400}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := s.ReceiveStock(ctx, domain.InventoryReceipt{ProductID: "p1", VendorID: "ven-missing", Quantity: 1, UnitCostCents: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing vendor, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 15 {
		t.Fatalf("rejected receipts changed stock to %d", got)
	}
}

func TestCommitSaleIsAllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p1 := seedProduct(t, s, "p1", "", 10)
	p2 := seedProduct(t, s, "p2", "", 1)

	_, _, err := s.CommitSale(ctx, saleOf("k-short", lineFor(p1, 3), lineFor(p2, 2)))
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != "p2" {
		t.Fatalf("expected insufficient stock on p2, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 10 {
		t.Fatalf("p1 stock moved to %d on a failed sale", got)
	}
	if _, err := s.FindSaleByIdempotency(ctx, "k-short"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed sale was persisted: %v", err)
	}
}

func TestCommitSaleReplaysIdempotencyKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 10)

	first, replayed, err := s.CommitSale(ctx, saleOf("k-1", lineFor(p, 2), lineFor(p, 1)))
	if err != nil || replayed {
		t.Fatalf("first commit: replayed=%v err=%v", replayed, err)
	}
	again, replayed, err := s.CommitSale(ctx, saleOf("k-1", lineFor(p, 2), lineFor(p, 1)))
	if err != nil || !replayed {
		t.Fatalf("replay: replayed=%v err=%v", replayed, err)
	}
	if again.ID != first.ID || len(again.Items) != 2 || again.Items[0].Quantity != 2 {
		t.Fatalf("replayed sale differs: %+v", again)
	}
	if got := stockOf(t, s, "p1"); got != 7 {
		t.Fatalf("expected stock 7 after one sale, got %d", got)
	}
}

func TestCommitSaleChargesCustomer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 10)
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Warung", Phone: "0812", Type: domain.ChannelWholesale, CreditLimitCents: 2500})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	sale := saleOf("k-credit", lineFor(p, 2))
	sale.CustomerID = customer.ID
	sale.PaymentMethod = domain.PaymentCredit
	committed, _, err := s.CommitSale(ctx, sale)
	if err != nil {
		t.Fatalf("commit credit sale: %v", err)
	}
	if committed.CustomerName != "Warung" {
		t.Fatalf("expected customer name on sale, got %q", committed.CustomerName)
	}

	over := saleOf("k-credit-2", lineFor(p, 1))
	over.CustomerID = customer.ID
	over.PaymentMethod = domain.PaymentCredit
	if _, _, err := s.CommitSale(ctx, over); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected credit limit rejection, got %v", err)
	}

	got, err := s.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if got.OutstandingBalanceCents != 2000 || got.TotalSpentCents != 2000 {
		t.Fatalf("unexpected customer aggregates %+v", got)
	}
	if stock := stockOf(t, s, "p1"); stock != 8 {
		t.Fatalf("rejected credit sale moved stock to %d", stock)
	}
}

func TestRefundReturnsStockOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 10)

	sale, _, err := s.CommitSale(ctx, saleOf("k-refund", lineFor(p, 4)))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	refunded, err := s.RefundSale(ctx, sale.ID, "wrong item", time.Now().UTC())
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.SaleStatusRefunded || refunded.RefundedAt == nil {
		t.Fatalf("unexpected refunded sale %+v", refunded)
	}
	if _, err := s.RefundSale(ctx, sale.ID, "again", time.Now().UTC()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second refund rejected, got %v", err)
	}
	if got := stockOf(t, s, "p1"); got != 10 {
		t.Fatalf("expected stock back at 10, got %d", got)
	}

	stored, err := s.FindSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if stored.Status != domain.SaleStatusRefunded || stored.RefundReason != "wrong item" {
		t.Fatalf("refund not persisted: %+v", stored)
	}
}

func TestProductCodesAndUniqueness(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "p1", "899000111", 0)
	seedProduct(t, s, "p2", "", 0)

	byBarcode, err := s.GetProductByCode(ctx, "899000111")
	if err != nil || byBarcode.ID != "p1" {
		t.Fatalf("barcode lookup: %+v %v", byBarcode, err)
	}
	bySKU, err := s.GetProductByCode(ctx, "SKU-p2")
	if err != nil || bySKU.ID != "p2" {
		t.Fatalf("sku lookup: %+v %v", bySKU, err)
	}

	_, err = s.CreateProduct(ctx, domain.Product{SKU: "SKU-p1", Name: "dup"}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Violations["sku"] != "duplicate" {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
	_, err = s.CreateProduct(ctx, domain.Product{SKU: "SKU-NEW", Barcode: "899000111", Name: "dup"}, nil)
	if !errors.As(err, &verr) || verr.Violations["barcode"] != "duplicate" {
		t.Fatalf("expected duplicate barcode, got %v", err)
	}
}

func TestCreateProductWithOpeningStockIsAtomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProduct(ctx,
		domain.Product{ID: "p1", SKU: "SKU-p1", Name: "p1", Unit: "pcs", CostPriceCents: 100, RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{Quantity: 8, UnitCostCents: 95, BatchNumber: "OPENING"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.StockLevel != 8 || created.CostPriceCents != 95 {
		t.Fatalf("expected stock 8 cost 95, got %d / %d", created.StockLevel, created.CostPriceCents)
	}
	receipts, err := s.ListReceipts(ctx, "p1", 0)
	if err != nil || len(receipts) != 1 || receipts[0].BatchNumber != "OPENING" {
		t.Fatalf("expected one opening receipt, got %+v %v", receipts, err)
	}

	_, err = s.CreateProduct(ctx,
		domain.Product{ID: "p2", SKU: "SKU-p2", Name: "p2", RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{VendorID: "ven-1", Quantity: 8, UnitCostCents: 95})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = s.CreateProduct(ctx,
		domain.Product{ID: "p3", SKU: "SKU-p1", Name: "dup", RetailPriceCents: 1000, WholesalePriceCents: 700},
		&domain.InventoryReceipt{Quantity: 8, UnitCostCents: 95})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
	for _, id := range []string{"p2", "p3"} {
		if _, err := s.GetProduct(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("product %s committed: %v", id, err)
		}
		if receipts, _ := s.ListReceipts(ctx, id, 0); len(receipts) != 0 {
			t.Fatalf("receipt for %s committed: %+v", id, receipts)
		}
	}
}

func TestUpdateProductKeepsStockAndCost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 12)

	p.Name = "Renamed"
	p.RetailPriceCents = 1500
	p.StockLevel = 999
	p.CostPriceCents = 1
	updated, err := s.UpdateProduct(ctx, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.RetailPriceCents != 1500 {
		t.Fatalf("editable fields not applied: %+v", updated)
	}
	if updated.StockLevel != 12 || updated.CostPriceCents != 100 {
		t.Fatalf("update touched stock or cost: %+v", updated)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 8)

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := s.CommitSale(ctx, saleOf("race-"+strconv.Itoa(i), lineFor(p, 1))); err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if committed != 8 {
		t.Fatalf("expected 8 committed sales, got %d", committed)
	}
	if got := stockOf(t, s, "p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestSnapshotAndListSalesWindow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "p1", "", 10)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(24 * time.Hour), base.Add(48 * time.Hour)} {
		sale := saleOf("w-"+strconv.Itoa(i), lineFor(p, 1))
		sale.CreatedAt = at
		if _, _, err := s.CommitSale(ctx, sale); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	snap, err := s.Snapshot(ctx, base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Sales) != 2 || snap.Sales[0].IdempotencyKey != "w-0" {
		t.Fatalf("expected two oldest-first sales, got %d", len(snap.Sales))
	}
	if len(snap.Products) != 1 || snap.Products[0].StockLevel != 7 {
		t.Fatalf("unexpected snapshot products %+v", snap.Products)
	}

	recent, err := s.ListSales(ctx, time.Time{}, time.Time{}, 2)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(recent) != 2 || recent[0].IdempotencyKey != "w-2" {
		t.Fatalf("expected newest-first limited list, got %d", len(recent))
	}
}

func TestSettingsUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSettings(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected settings not found, got %v", err)
	}
	settings := domain.DefaultSettings(decimal.NewFromInt(10))
	if _, err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	settings.TaxRatePercent = decimal.RequireFromString("12.5")
	settings.StoreName = "Toko Baru"
	if _, err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StoreName != "Toko Baru" || !got.TaxRatePercent.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestUsersAndAuditLogs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.UserAccount{Username: " Kasir1 ", Password: "hash", Role: domain.RoleCashier}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "kasir1", Password: "hash"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "KASIR1", "hash2"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	user, err := s.GetUser(ctx, "kasir1")
	if err != nil || user.Password != "hash2" || !user.Active {
		t.Fatalf("unexpected user %+v %v", user, err)
	}

	for _, action := range []string{"checkout", "refund"} {
		if err := s.CreateAuditLog(ctx, domain.AuditLog{ActorUsername: "kasir1", Action: action, EntityType: "sale", EntityID: "s1"}); err != nil {
			t.Fatalf("audit: %v", err)
		}
	}
	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Time{}, 1)
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one limited audit row, got %d %v", len(logs), err)
	}
}
