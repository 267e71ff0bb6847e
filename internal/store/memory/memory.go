package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/stock"
	"grosirpos/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	products      map[string]domain.Product
	receipts      []domain.InventoryReceipt
	salesByID     map[string]*domain.Sale
	salesByIdem   map[string]*domain.Sale
	saleOrder     []string
	customersByID map[string]domain.Customer
	vendorsByID   map[string]domain.Vendor
	settings      *domain.Settings
	auditLogs     []domain.AuditLog
	usersByName   map[string]domain.UserAccount
}

// New returns an empty store with no operator accounts.
func New() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		products:      make(map[string]domain.Product),
		salesByID:     make(map[string]*domain.Sale),
		salesByIdem:   make(map[string]*domain.Sale),
		customersByID: make(map[string]domain.Customer),
		vendorsByID:   make(map[string]domain.Vendor),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		usersByName:   make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo operator accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a demo store with a small grocery catalog, a vendor,
// one wholesale customer and the seed operator accounts.
func NewSeeded() *Store {
	s := New()
	now := s.now()
	s.usersByName = seedUsers()

	products := []domain.Product{
		{ID: "prd-rice-5kg", SKU: "RICE-5KG", Barcode: "8990001000011", Name: "Rice 5kg", Category: "staples", Unit: "bag", CostPriceCents: 5200, RetailPriceCents: 6500, WholesalePriceCents: 5900, MinWholesaleQty: 10, AlertLevel: 20},
		{ID: "prd-oil-2l", SKU: "OIL-2L", Barcode: "8990001000028", Name: "Cooking Oil 2L", Category: "staples", Unit: "bottle", CostPriceCents: 2700, RetailPriceCents: 3400, WholesalePriceCents: 3000, MinWholesaleQty: 12, AlertLevel: 24},
		{ID: "prd-sugar-1kg", SKU: "SUGAR-1KG", Barcode: "8990001000035", Name: "Sugar 1kg", Category: "staples", Unit: "pack", CostPriceCents: 1350, RetailPriceCents: 1750, WholesalePriceCents: 1550, MinWholesaleQty: 20, AlertLevel: 30},
		{ID: "prd-noodle", SKU: "NOODLE-01", Barcode: "8990001000042", Name: "Instant Noodles", Category: "grocery", Unit: "pcs", CostPriceCents: 250, RetailPriceCents: 350, WholesalePriceCents: 290, MinWholesaleQty: 40, AlertLevel: 80},
		{ID: "prd-eggs-10", SKU: "EGGS-10", Barcode: "8990001000059", Name: "Eggs (10)", Category: "fresh", Unit: "tray", CostPriceCents: 2100, RetailPriceCents: 2650, WholesalePriceCents: 2400, MinWholesaleQty: 10, AlertLevel: 15},
		{ID: "prd-coffee", SKU: "COFFEE-SCH", Barcode: "8990001000066", Name: "Coffee Sachet", Category: "beverage", Unit: "pcs", CostPriceCents: 170, RetailPriceCents: 260, WholesalePriceCents: 210, MinWholesaleQty: 50, AlertLevel: 100},
		{ID: "prd-soap", SKU: "SOAP-BAR", Barcode: "8990001000073", Name: "Bath Soap", Category: "household", Unit: "pcs", CostPriceCents: 480, RetailPriceCents: 740, WholesalePriceCents: 600, MinWholesaleQty: 24, AlertLevel: 30},
	}
	for _, p := range products {
		p.StockLevel = 120
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	s.vendorsByID["ven-sumber-makmur"] = domain.Vendor{ID: "ven-sumber-makmur", Name: "Sumber Makmur", ContactPerson: "Budi", Phone: "555-0101", CreatedAt: now}
	s.customersByID["cus-warung-ani"] = domain.Customer{ID: "cus-warung-ani", Name: "Warung Ani", Phone: "555-0199", Type: domain.ChannelWholesale, CreditLimitCents: 5_000_000, CreatedAt: now}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedProducts(), nil
}

func (s *Store) sortedProducts() []domain.Product {
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, domain.NotFound("product", id)
	}
	return &product, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.Invalid("code", "required")
	}
	var bySKU *domain.Product
	for _, p := range s.products {
		if p.Barcode == code {
			found := p
			return &found, nil
		}
		if p.SKU == code {
			found := p
			bySKU = &found
		}
	}
	if bySKU == nil {
		return nil, domain.NotFound("product", code)
	}
	return bySKU, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, opening *domain.InventoryReceipt) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.PrepareProduct(&product, s.now()); err != nil {
		return nil, err
	}
	if err := s.checkUnique(product); err != nil {
		return nil, err
	}
	if opening != nil {
		receipt := *opening
		if err := store.PrepareOpeningStock(&product, &receipt); err != nil {
			return nil, err
		}
		s.receipts = append(s.receipts, receipt)
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists {
		return nil, domain.NotFound("product", product.ID)
	}
	updated, err := store.MergeProductUpdate(current, product, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(updated); err != nil {
		return nil, err
	}
	s.products[updated.ID] = updated
	return &updated, nil
}

func (s *Store) checkUnique(product domain.Product) error {
	for _, p := range s.products {
		if p.ID == product.ID {
			continue
		}
		if p.SKU == product.SKU {
			return domain.Invalid("sku", "duplicate")
		}
		if product.Barcode != "" && p.Barcode == product.Barcode {
			return domain.Invalid("barcode", "duplicate")
		}
	}
	return nil
}

func (s *Store) ReceiveStock(_ context.Context, receipt domain.InventoryReceipt) (*domain.InventoryReceipt, *domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareReceipt(&receipt, s.now())
	if err := stock.ValidateReceipt(receipt); err != nil {
		return nil, nil, err
	}
	product, exists := s.products[receipt.ProductID]
	if !exists {
		return nil, nil, domain.NotFound("product", receipt.ProductID)
	}
	if receipt.VendorID != "" {
		if _, ok := s.vendorsByID[receipt.VendorID]; !ok {
			return nil, nil, domain.NotFound("vendor", receipt.VendorID)
		}
	}
	if err := stock.Receive(&product, receipt.Quantity, receipt.UnitCostCents); err != nil {
		return nil, nil, err
	}
	product.UpdatedAt = receipt.ReceivedAt

	s.products[product.ID] = product
	s.receipts = append(s.receipts, receipt)
	return &receipt, &product, nil
}

func (s *Store) ListReceipts(_ context.Context, productID string, limit int) ([]domain.InventoryReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryReceipt, 0, 16)
	for i := len(s.receipts) - 1; i >= 0; i-- {
		r := s.receipts[i]
		if productID != "" && r.ProductID != productID {
			continue
		}
		result = append(result, r)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.salesByIdem[strings.TrimSpace(sale.IdempotencyKey)]; ok {
		return cloneSale(existing), true, nil
	}
	if err := store.PrepareSale(&sale, s.now()); err != nil {
		return nil, false, err
	}
	moves, err := stock.Plan(sale.Items)
	if err != nil {
		return nil, false, err
	}

	// Work on copies so a failed line leaves every row untouched.
	staged := make([]domain.Product, 0, len(moves))
	for _, m := range moves {
		product, exists := s.products[m.ProductID]
		if !exists {
			return nil, false, domain.NotFound("product", m.ProductID)
		}
		if err := stock.Deduct(&product, m.Quantity); err != nil {
			return nil, false, err
		}
		product.UpdatedAt = sale.CreatedAt
		staged = append(staged, product)
	}

	var customer *domain.Customer
	if sale.CustomerID != "" {
		c, exists := s.customersByID[sale.CustomerID]
		if !exists {
			return nil, false, domain.NotFound("customer", sale.CustomerID)
		}
		if err := store.ChargeCustomer(&c, &sale); err != nil {
			return nil, false, err
		}
		customer = &c
	}

	for _, p := range staged {
		s.products[p.ID] = p
	}
	if customer != nil {
		s.customersByID[customer.ID] = *customer
	}
	stored := cloneSale(&sale)
	s.salesByID[stored.ID] = stored
	s.salesByIdem[stored.IdempotencyKey] = stored
	s.saleOrder = append(s.saleOrder, stored.ID)
	return cloneSale(stored), false, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, domain.NotFound("sale", id)
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, domain.NotFound("sale", key)
	}
	return cloneSale(sale), nil
}

func (s *Store) RefundSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[id]
	if !ok {
		return nil, domain.NotFound("sale", id)
	}
	sale := cloneSale(existing)
	if err := store.PrepareRefund(sale, reason, at); err != nil {
		return nil, err
	}
	moves, err := stock.Plan(sale.Items)
	if err != nil {
		return nil, err
	}
	staged := make([]domain.Product, 0, len(moves))
	for _, m := range moves {
		product, exists := s.products[m.ProductID]
		if !exists {
			// The product left the catalog; there is no shelf to return to.
			continue
		}
		if err := stock.Return(&product, m.Quantity); err != nil {
			return nil, err
		}
		product.UpdatedAt = at
		staged = append(staged, product)
	}

	for _, p := range staged {
		s.products[p.ID] = p
	}
	*existing = *sale
	return cloneSale(existing), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		sale := s.salesByID[s.saleOrder[i]]
		if !store.InRange(sale.CreatedAt, from, to) {
			continue
		}
		result = append(result, *cloneSale(sale))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.PrepareCustomer(&customer, s.now()); err != nil {
		return nil, err
	}
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, domain.NotFound("customer", id)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCustomers(), nil
}

func (s *Store) sortedCustomers() []domain.Customer {
	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return customers
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.PrepareVendor(&vendor, s.now()); err != nil {
		return nil, err
	}
	s.vendorsByID[vendor.ID] = vendor
	return &vendor, nil
}

func (s *Store) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendorsByID[id]
	if !ok {
		return nil, domain.NotFound("vendor", id)
	}
	return &vendor, nil
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(s.vendorsByID))
	for _, v := range s.vendorsByID {
		vendors = append(vendors, v)
	}
	slices.SortFunc(vendors, func(a, b domain.Vendor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return vendors, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, domain.NotFound("settings", "")
	}
	settings := *s.settings
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.ValidTaxRate(settings.TaxRatePercent) {
		return nil, domain.Invalid("tax_rate_percent", "out_of_range")
	}
	settings.UpdatedAt = s.now()
	s.settings = &settings
	saved := settings
	return &saved, nil
}

// Snapshot holds the read lock for the whole copy, so no checkout or receipt
// can interleave with it.
func (s *Store) Snapshot(_ context.Context, from time.Time, to time.Time) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if store.InRange(sale.CreatedAt, from, to) {
			sales = append(sales, *cloneSale(sale))
		}
	}
	return store.Snapshot{
		Products:  s.sortedProducts(),
		Sales:     sales,
		Customers: s.sortedCustomers(),
		TakenAt:   s.now(),
	}, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareAuditLog(&entry, s.now())
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !store.InRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.PrepareUser(&user, s.now()); err != nil {
		return err
	}
	if _, exists := s.usersByName[user.Username]; exists {
		return domain.Invalid("username", "duplicate")
	}
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByName[store.NormalizeUsername(username)]
	if !ok {
		return nil, domain.NotFound("user", username)
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, user := range s.usersByName {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = store.NormalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.Invalid("password", "required")
	}
	user, exists := s.usersByName[username]
	if !exists {
		return domain.NotFound("user", username)
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	if src.RefundedAt != nil {
		at := *src.RefundedAt
		dup.RefundedAt = &at
	}
	return &dup
}
