// Package gormstore persists the ledger through gorm, for MySQL deployments
// and for single-file SQLite installs.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/stock"
	"grosirpos/backend/internal/store"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Store struct {
	db       *gorm.DB
	readOpts *sql.TxOptions
	now      func() time.Time
}

type Options struct {
	AutoMigrate bool
	Debug       bool
}

// Open connects with the named driver, retrying while the server comes up.
func Open(driver string, dsn string, opts Options) (*Store, error) {
	var dialector gorm.Dialector
	var readOpts *sql.TxOptions
	switch driver {
	case DriverMySQL:
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true&loc=UTC"
		}
		dialector = mysql.Open(dsn)
		readOpts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	var err error
	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			break
		}
		log.Printf("[gormstore] connect failed, retrying in 2s (%d/5): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s after retries: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One connection serialises writers; SQLite has no row locks.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(8)
		sqlDB.SetMaxOpenConns(30)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if opts.AutoMigrate {
		if err := db.AutoMigrate(
			&productRow{}, &vendorRow{}, &receiptRow{}, &customerRow{},
			&saleRow{}, &saleItemRow{}, &settingsRow{}, &auditLogRow{}, &userRow{},
		); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	return &Store{db: db, readOpts: readOpts, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, entity string, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound(entity, id)
	}
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return listProducts(s.db.WithContext(ctx))
}

func listProducts(db *gorm.DB) ([]domain.Product, error) {
	var rows []productRow
	if err := db.Order("category, name").Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.Invalid("code", "required")
	}
	db := s.db.WithContext(ctx)
	var row productRow
	err := db.Where("barcode = ?", code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("sku = ?", code).First(&row).Error
	}
	if err != nil {
		return nil, notFound(err, "product", code)
	}
	p := row.toDomain()
	return &p, nil
}

// checkUnique names the clashing field; the unique indexes stay the final
// guard for concurrent writers.
func checkUnique(tx *gorm.DB, p domain.Product) error {
	var count int64
	if err := tx.Model(&productRow{}).Where("sku = ? AND id <> ?", p.SKU, p.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.Invalid("sku", "duplicate")
	}
	if p.Barcode == "" {
		return nil
	}
	if err := tx.Model(&productRow{}).Where("barcode = ? AND id <> ?", p.Barcode, p.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.Invalid("barcode", "duplicate")
	}
	return nil
}

func productWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Invalid("sku", "duplicate")
	}
	return err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, opening *domain.InventoryReceipt) (*domain.Product, error) {
	if err := store.PrepareProduct(&product, s.now()); err != nil {
		return nil, err
	}
	var receipt domain.InventoryReceipt
	if opening != nil {
		receipt = *opening
		if err := store.PrepareOpeningStock(&product, &receipt); err != nil {
			return nil, err
		}
		receipt.ReceivedAt = receipt.ReceivedAt.UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, product); err != nil {
			return err
		}
		row := productFromDomain(product)
		if err := tx.Create(&row).Error; err != nil {
			return productWriteError(err)
		}
		if opening == nil {
			return nil
		}
		receiptRow := receiptFromDomain(receipt)
		return tx.Create(&receiptRow).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func lockProduct(tx *gorm.DB, id string) (domain.Product, error) {
	var row productRow
	if err := forUpdate(tx).Where("id = ?", id).First(&row).Error; err != nil {
		return domain.Product{}, notFound(err, "product", id)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var saved domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockProduct(tx, product.ID)
		if err != nil {
			return err
		}
		merged, err := store.MergeProductUpdate(current, product, s.now())
		if err != nil {
			return err
		}
		if err := checkUnique(tx, merged); err != nil {
			return err
		}
		row := productFromDomain(merged)
		err = tx.Model(&productRow{}).Where("id = ?", merged.ID).Updates(map[string]any{
			"sku":                   row.SKU,
			"barcode":               row.Barcode,
			"name":                  row.Name,
			"category":              row.Category,
			"description":           row.Description,
			"unit":                  row.Unit,
			"retail_price_cents":    row.RetailPriceCents,
			"wholesale_price_cents": row.WholesalePriceCents,
			"min_wholesale_qty":     row.MinWholesaleQty,
			"alert_level":           row.AlertLevel,
			"updated_at":            row.UpdatedAt,
		}).Error
		if err != nil {
			return productWriteError(err)
		}
		saved = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func writeStock(tx *gorm.DB, p domain.Product) error {
	return tx.Model(&productRow{}).Where("id = ?", p.ID).Updates(map[string]any{
		"stock_level":      p.StockLevel,
		"cost_price_cents": p.CostPriceCents,
		"updated_at":       p.UpdatedAt,
	}).Error
}

func (s *Store) ReceiveStock(ctx context.Context, receipt domain.InventoryReceipt) (*domain.InventoryReceipt, *domain.Product, error) {
	store.PrepareReceipt(&receipt, s.now())
	receipt.ReceivedAt = receipt.ReceivedAt.UTC()
	if err := stock.ValidateReceipt(receipt); err != nil {
		return nil, nil, err
	}

	var product domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockProduct(tx, receipt.ProductID)
		if err != nil {
			return err
		}
		if receipt.VendorID != "" {
			var vendor vendorRow
			if err := tx.Where("id = ?", receipt.VendorID).First(&vendor).Error; err != nil {
				return notFound(err, "vendor", receipt.VendorID)
			}
		}
		if err := stock.Receive(&locked, receipt.Quantity, receipt.UnitCostCents); err != nil {
			return err
		}
		locked.UpdatedAt = receipt.ReceivedAt
		if err := writeStock(tx, locked); err != nil {
			return err
		}
		row := receiptFromDomain(receipt)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		product = locked
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &receipt, &product, nil
}

func (s *Store) ListReceipts(ctx context.Context, productID string, limit int) ([]domain.InventoryReceipt, error) {
	q := s.db.WithContext(ctx).Order("received_at DESC, id DESC")
	if productID != "" {
		q = q.Where("product_id = ?", productID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []receiptRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	receipts := make([]domain.InventoryReceipt, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, row.toDomain())
	}
	return receipts, nil
}

// CommitSale locks the sale's product rows in id order, applies every
// deduction and the customer charge, then inserts the sale, all in one
// transaction.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if existing, err := s.FindSaleByIdempotency(ctx, strings.TrimSpace(sale.IdempotencyKey)); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	if err := store.PrepareSale(&sale, s.now()); err != nil {
		return nil, false, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	moves, err := stock.Plan(sale.Items)
	if err != nil {
		return nil, false, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range moves {
			product, err := lockProduct(tx, m.ProductID)
			if err != nil {
				return err
			}
			if err := stock.Deduct(&product, m.Quantity); err != nil {
				return err
			}
			product.UpdatedAt = sale.CreatedAt
			if err := writeStock(tx, product); err != nil {
				return err
			}
		}

		if sale.CustomerID != "" {
			var row customerRow
			if err := forUpdate(tx).Where("id = ?", sale.CustomerID).First(&row).Error; err != nil {
				return notFound(err, "customer", sale.CustomerID)
			}
			customer := row.toDomain()
			if err := store.ChargeCustomer(&customer, &sale); err != nil {
				return err
			}
			if err := tx.Model(&customerRow{}).Where("id = ?", customer.ID).Updates(map[string]any{
				"total_spent_cents":         customer.TotalSpentCents,
				"outstanding_balance_cents": customer.OutstandingBalanceCents,
			}).Error; err != nil {
				return err
			}
		}

		row := saleFromDomain(sale)
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey); lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	return &sale, false, nil
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no")
	})
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	var row saleRow
	if err := withItems(s.db.WithContext(ctx)).Where(column+" = ?", value).First(&row).Error; err != nil {
		return nil, notFound(err, "sale", value)
	}
	sale := row.toDomain()
	return &sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) RefundSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	var refunded domain.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row saleRow
		if err := withItems(forUpdate(tx)).Where("id = ?", id).First(&row).Error; err != nil {
			return notFound(err, "sale", id)
		}
		sale := row.toDomain()
		if err := store.PrepareRefund(&sale, reason, at); err != nil {
			return err
		}
		moves, err := stock.Plan(sale.Items)
		if err != nil {
			return err
		}
		for _, m := range moves {
			product, err := lockProduct(tx, m.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := stock.Return(&product, m.Quantity); err != nil {
				return err
			}
			product.UpdatedAt = at
			if err := writeStock(tx, product); err != nil {
				return err
			}
		}
		if err := tx.Model(&saleRow{}).Where("id = ?", sale.ID).Updates(map[string]any{
			"status":        string(sale.Status),
			"refund_reason": sale.RefundReason,
			"refunded_at":   at.UTC(),
		}).Error; err != nil {
			return err
		}
		refunded = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &refunded, nil
}

func listSales(db *gorm.DB, from time.Time, to time.Time, order string, limit int) ([]domain.Sale, error) {
	q := withItems(db).Order("created_at " + order + ", id " + order)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []saleRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, row.toDomain())
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	return listSales(s.db.WithContext(ctx), from, to, "DESC", limit)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if err := store.PrepareCustomer(&customer, s.now()); err != nil {
		return nil, err
	}
	row := customerFromDomain(customer)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var row customerRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "customer", id)
	}
	c := row.toDomain()
	return &c, nil
}

func listCustomers(db *gorm.DB) ([]domain.Customer, error) {
	var rows []customerRow
	if err := db.Order("name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.toDomain())
	}
	return customers, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listCustomers(s.db.WithContext(ctx))
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if err := store.PrepareVendor(&vendor, s.now()); err != nil {
		return nil, err
	}
	row := vendorRow{
		ID: vendor.ID, Name: vendor.Name, ContactPerson: vendor.ContactPerson, Phone: vendor.Phone,
		Email: vendor.Email, Address: vendor.Address, TaxID: vendor.TaxID, CreatedAt: vendor.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var row vendorRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "vendor", id)
	}
	v := row.toDomain()
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	var rows []vendorRow
	if err := s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	vendors := make([]domain.Vendor, 0, len(rows))
	for _, row := range rows {
		vendors = append(vendors, row.toDomain())
	}
	return vendors, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var row settingsRow
	if err := s.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error; err != nil {
		return nil, notFound(err, "settings", "")
	}
	return &domain.Settings{
		StoreName: row.StoreName, Address: row.Address, Phone: row.Phone, Email: row.Email,
		ReceiptHeader: row.ReceiptHeader, ReceiptFooter: row.ReceiptFooter, Currency: row.Currency,
		TaxRatePercent: row.TaxRatePercent, UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if !domain.ValidTaxRate(settings.TaxRatePercent) {
		return nil, domain.Invalid("tax_rate_percent", "out_of_range")
	}
	settings.UpdatedAt = s.now()
	row := settingsRow{
		ID: 1, StoreName: settings.StoreName, Address: settings.Address, Phone: settings.Phone,
		Email: settings.Email, ReceiptHeader: settings.ReceiptHeader, ReceiptFooter: settings.ReceiptFooter,
		Currency: settings.Currency, TaxRatePercent: settings.TaxRatePercent, UpdatedAt: settings.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Snapshot reads the three collections inside one transaction. On MySQL it
// is a read-only repeatable-read snapshot; SQLite's single connection keeps
// writers out for the duration.
func (s *Store) Snapshot(ctx context.Context, from time.Time, to time.Time) (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if snap.Products, err = listProducts(tx); err != nil {
			return err
		}
		if snap.Sales, err = listSales(tx, from, to, "ASC", 0); err != nil {
			return err
		}
		if snap.Customers, err = listCustomers(tx); err != nil {
			return err
		}
		snap.TakenAt = s.now()
		return nil
	}, s.readOpts)
	return snap, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	store.PrepareAuditLog(&entry, s.now())
	row := auditLogRow{
		ID: entry.ID, ActorUsername: entry.ActorUsername, ActorRole: entry.ActorRole, Action: entry.Action,
		EntityType: entry.EntityType, EntityID: entry.EntityID, Detail: entry.Detail, CreatedAt: entry.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []auditLogRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, domain.AuditLog{
			ID: row.ID, ActorUsername: row.ActorUsername, ActorRole: row.ActorRole, Action: row.Action,
			EntityType: row.EntityType, EntityID: row.EntityID, Detail: row.Detail, CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if err := store.PrepareUser(&user, s.now()); err != nil {
		return err
	}
	row := userRow{
		Username: user.Username, Password: user.Password, Role: user.Role, Active: user.Active,
		CreatedAt: user.CreatedAt, UpdatedAt: user.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Invalid("username", "duplicate")
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = store.NormalizeUsername(username)
	var row userRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	user := row.toDomain()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = store.NormalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.Invalid("password", "required")
	}
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Updates(map[string]any{
		"password":   password,
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("user", username)
	}
	return nil
}
