package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"grosirpos/backend/internal/domain"
	"grosirpos/backend/internal/stock"
	"grosirpos/backend/internal/store"
)

const maxSerializableAttempts = 3

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction and retries it when postgres aborts a
// serializable transaction on a conflict.
func (s *Store) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxSerializableAttempts; attempt++ {
		err = s.runTx(ctx, opts, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxSerializableAttempts, err)
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

var serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const productColumns = `id, sku, COALESCE(barcode, ''), name, category, description, unit,
	cost_price_cents, retail_price_cents, wholesale_price_cents, min_wholesale_qty,
	stock_level, alert_level, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Category, &p.Description, &p.Unit,
		&p.CostPriceCents, &p.RetailPriceCents, &p.WholesalePriceCents, &p.MinWholesaleQty,
		&p.StockLevel, &p.AlertLevel, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func listProducts(ctx context.Context, q queryer) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return listProducts(ctx, s.db)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.Invalid("code", "required")
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1 OR sku = $1
		ORDER BY (barcode = $1) DESC NULLS LAST
		LIMIT 1
	`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product", code)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
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
	}
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		if err := insertProduct(ctx, tx, product); err != nil {
			return productWriteError(err)
		}
		if opening != nil {
			return insertReceipt(ctx, tx, receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func insertProduct(ctx context.Context, tx *sql.Tx, product domain.Product) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO products (
			id, sku, barcode, name, category, description, unit, cost_price_cents,
			retail_price_cents, wholesale_price_cents, min_wholesale_qty, stock_level,
			alert_level, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, product.ID, product.SKU, nullIfEmpty(product.Barcode), product.Name, product.Category, product.Description,
		product.Unit, product.CostPriceCents, product.RetailPriceCents, product.WholesalePriceCents,
		product.MinWholesaleQty, product.StockLevel, product.AlertLevel, product.CreatedAt, product.UpdatedAt)
	return err
}

func insertReceipt(ctx context.Context, tx *sql.Tx, receipt domain.InventoryReceipt) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_receipts (
			id, product_id, vendor_id, quantity, unit_cost_cents, batch_number,
			expiry_date, received_by, received_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, receipt.ID, receipt.ProductID, nullIfEmpty(receipt.VendorID), receipt.Quantity, receipt.UnitCostCents,
		receipt.BatchNumber, nullDate(receipt.ExpiryDate), receipt.ReceivedBy, receipt.ReceivedAt)
	return err
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var saved domain.Product
	err := s.inTx(ctx, serializable, func(tx *sql.Tx) error {
		current, err := lockProduct(ctx, tx, product.ID)
		if err != nil {
			return err
		}
		merged, err := store.MergeProductUpdate(current, product, s.now())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET sku = $2, barcode = $3, name = $4, category = $5, description = $6, unit = $7,
				retail_price_cents = $8, wholesale_price_cents = $9, min_wholesale_qty = $10,
				alert_level = $11, updated_at = $12
			WHERE id = $1
		`, merged.ID, merged.SKU, nullIfEmpty(merged.Barcode), merged.Name, merged.Category, merged.Description,
			merged.Unit, merged.RetailPriceCents, merged.WholesalePriceCents, merged.MinWholesaleQty,
			merged.AlertLevel, merged.UpdatedAt)
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

func lockProduct(ctx context.Context, tx *sql.Tx, id string) (domain.Product, error) {
	p, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NotFound("product", id)
	}
	return p, err
}

func writeStock(ctx context.Context, tx *sql.Tx, p domain.Product) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock_level = $2, cost_price_cents = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.StockLevel, p.CostPriceCents, p.UpdatedAt)
	return err
}

func (s *Store) ReceiveStock(ctx context.Context, receipt domain.InventoryReceipt) (*domain.InventoryReceipt, *domain.Product, error) {
	store.PrepareReceipt(&receipt, s.now())
	if err := stock.ValidateReceipt(receipt); err != nil {
		return nil, nil, err
	}

	var product domain.Product
	err := s.inTx(ctx, serializable, func(tx *sql.Tx) error {
		locked, err := lockProduct(ctx, tx, receipt.ProductID)
		if err != nil {
			return err
		}
		if receipt.VendorID != "" {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vendors WHERE id = $1)`, receipt.VendorID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.NotFound("vendor", receipt.VendorID)
			}
		}
		if err := stock.Receive(&locked, receipt.Quantity, receipt.UnitCostCents); err != nil {
			return err
		}
		locked.UpdatedAt = receipt.ReceivedAt
		if err := writeStock(ctx, tx, locked); err != nil {
			return err
		}
		if err := insertReceipt(ctx, tx, receipt); err != nil {
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
	query := `
		SELECT id, product_id, COALESCE(vendor_id, ''), quantity, unit_cost_cents, batch_number,
			expiry_date, received_by, received_at
		FROM inventory_receipts
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY received_at DESC, id DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.InventoryReceipt, 0, 16)
	for rows.Next() {
		var r domain.InventoryReceipt
		var expiry sql.NullTime
		if err := rows.Scan(&r.ID, &r.ProductID, &r.VendorID, &r.Quantity, &r.UnitCostCents, &r.BatchNumber,
			&expiry, &r.ReceivedBy, &r.ReceivedAt); err != nil {
			return nil, err
		}
		if expiry.Valid {
			e := expiry.Time.UTC()
			r.ExpiryDate = &e
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// CommitSale locks every product row of the sale in id order, applies the
// deductions, charges the customer and inserts the sale in one serializable
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
	// timestamptz keeps microseconds
	sale.CreatedAt = sale.CreatedAt.Truncate(time.Microsecond)
	moves, err := stock.Plan(sale.Items)
	if err != nil {
		return nil, false, err
	}

	err = s.inTx(ctx, serializable, func(tx *sql.Tx) error {
		for _, m := range moves {
			product, err := lockProduct(ctx, tx, m.ProductID)
			if err != nil {
				return err
			}
			if err := stock.Deduct(&product, m.Quantity); err != nil {
				return err
			}
			product.UpdatedAt = sale.CreatedAt
			if err := writeStock(ctx, tx, product); err != nil {
				return err
			}
		}

		if sale.CustomerID != "" {
			customer, err := scanCustomer(tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, sale.CustomerID))
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFound("customer", sale.CustomerID)
			}
			if err != nil {
				return err
			}
			if err := store.ChargeCustomer(&customer, &sale); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE customers
				SET total_spent_cents = $2, outstanding_balance_cents = $3
				WHERE id = $1
			`, customer.ID, customer.TotalSpentCents, customer.OutstandingBalanceCents); err != nil {
				return err
			}
		}

		return insertSale(ctx, tx, sale)
	})
	if err != nil {
		if isUniqueViolation(err) {
			if existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey); lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	return &sale, false, nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, idempotency_key, terminal_id, customer_id, customer_name, channel,
			subtotal_cents, discount_cents, tax_rate_percent, tax_cents, total_cents,
			cash_received_cents, change_cents, payment_method, status, refund_reason,
			refunded_at, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, sale.ID, sale.IdempotencyKey, sale.TerminalID, nullIfEmpty(sale.CustomerID), sale.CustomerName, sale.Channel,
		sale.SubtotalCents, sale.DiscountCents, sale.TaxRatePercent, sale.TaxCents, sale.TotalCents,
		sale.CashReceivedCents, sale.ChangeCents, sale.PaymentMethod, sale.Status, sale.RefundReason,
		nullTime(sale.RefundedAt), sale.CreatedBy, sale.CreatedAt)
	if err != nil {
		return err
	}
	for i, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `id, idempotency_key, terminal_id, COALESCE(customer_id, ''), customer_name, channel,
	subtotal_cents, discount_cents, tax_rate_percent, tax_cents, total_cents, cash_received_cents,
	change_cents, payment_method, status, refund_reason, refunded_at, created_by, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var refundedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.IdempotencyKey, &sale.TerminalID, &sale.CustomerID, &sale.CustomerName, &sale.Channel,
		&sale.SubtotalCents, &sale.DiscountCents, &sale.TaxRatePercent, &sale.TaxCents, &sale.TotalCents,
		&sale.CashReceivedCents, &sale.ChangeCents, &sale.PaymentMethod, &sale.Status, &sale.RefundReason,
		&refundedAt, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if refundedAt.Valid {
		at := refundedAt.Time.UTC()
		sale.RefundedAt = &at
	}
	return sale, nil
}

// loadSaleItems fills Items for every sale with one query.
func loadSaleItems(ctx context.Context, q queryer, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
		sales[i].Items = make([]domain.SaleItem, 0, 4)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return err
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+column+` = $1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("sale", value)
	}
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := loadSaleItems(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) RefundSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	var refunded domain.Sale
	err := s.inTx(ctx, serializable, func(tx *sql.Tx) error {
		sale, err := scanSale(tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("sale", id)
		}
		if err != nil {
			return err
		}
		sales := []domain.Sale{sale}
		if err := loadSaleItems(ctx, tx, sales); err != nil {
			return err
		}
		sale = sales[0]
		if err := store.PrepareRefund(&sale, reason, at); err != nil {
			return err
		}
		moves, err := stock.Plan(sale.Items)
		if err != nil {
			return err
		}
		for _, m := range moves {
			product, err := lockProduct(ctx, tx, m.ProductID)
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
			if err := writeStock(ctx, tx, product); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET status = $2, refund_reason = $3, refunded_at = $4
			WHERE id = $1
		`, sale.ID, sale.Status, sale.RefundReason, at); err != nil {
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

func listSales(ctx context.Context, q queryer, from time.Time, to time.Time, newestFirst bool, limit int) ([]domain.Sale, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := `SELECT ` + saleColumns + ` FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at ` + order + `, id ` + order
	args := []any{nullZeroTime(from), nullZeroTime(to)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := loadSaleItems(ctx, q, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	return listSales(ctx, s.db, from, to, true, limit)
}

const customerColumns = `id, name, phone, email, type, total_spent_cents, credit_limit_cents,
	outstanding_balance_cents, created_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Type, &c.TotalSpentCents, &c.CreditLimitCents,
		&c.OutstandingBalanceCents, &c.CreatedAt)
	return c, err
}

func listCustomers(ctx context.Context, q queryer) ([]domain.Customer, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if err := store.PrepareCustomer(&customer, s.now()); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, type, total_spent_cents, credit_limit_cents, outstanding_balance_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.Type, customer.TotalSpentCents,
		customer.CreditLimitCents, customer.OutstandingBalanceCents, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("customer", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listCustomers(ctx, s.db)
}

const vendorColumns = `id, name, contact_person, phone, email, address, tax_id, created_at`

func scanVendor(row rowScanner) (domain.Vendor, error) {
	var v domain.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.ContactPerson, &v.Phone, &v.Email, &v.Address, &v.TaxID, &v.CreatedAt)
	return v, err
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if err := store.PrepareVendor(&vendor, s.now()); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, contact_person, phone, email, address, tax_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, vendor.ID, vendor.Name, vendor.ContactPerson, vendor.Phone, vendor.Email, vendor.Address, vendor.TaxID, vendor.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	v, err := scanVendor(s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("vendor", id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 16)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, address, phone, email, receipt_header, receipt_footer, currency, tax_rate_percent, updated_at
		FROM store_settings
		WHERE id = 1
	`).Scan(&st.StoreName, &st.Address, &st.Phone, &st.Email, &st.ReceiptHeader, &st.ReceiptFooter, &st.Currency, &st.TaxRatePercent, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("settings", "")
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if !domain.ValidTaxRate(settings.TaxRatePercent) {
		return nil, domain.Invalid("tax_rate_percent", "out_of_range")
	}
	settings.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_settings (id, store_name, address, phone, email, receipt_header, receipt_footer, currency, tax_rate_percent, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name, address = EXCLUDED.address, phone = EXCLUDED.phone,
			email = EXCLUDED.email, receipt_header = EXCLUDED.receipt_header,
			receipt_footer = EXCLUDED.receipt_footer, currency = EXCLUDED.currency,
			tax_rate_percent = EXCLUDED.tax_rate_percent, updated_at = EXCLUDED.updated_at
	`, settings.StoreName, settings.Address, settings.Phone, settings.Email, settings.ReceiptHeader,
		settings.ReceiptFooter, settings.Currency, settings.TaxRatePercent, settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Snapshot reads products, sales and customers inside one read-only
// repeatable-read transaction, so every figure comes from the same state.
func (s *Store) Snapshot(ctx context.Context, from time.Time, to time.Time) (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(tx *sql.Tx) error {
		var err error
		if snap.Products, err = listProducts(ctx, tx); err != nil {
			return err
		}
		if snap.Sales, err = listSales(ctx, tx, from, to, false, 0); err != nil {
			return err
		}
		if snap.Customers, err = listCustomers(ctx, tx); err != nil {
			return err
		}
		snap.TakenAt = s.now()
		return nil
	})
	return snap, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	store.PrepareAuditLog(&entry, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	query := `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC`
	args := []any{nullZeroTime(from), nullZeroTime(to)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if err := store.PrepareUser(&user, s.now()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Invalid("username", "duplicate")
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = store.NormalizeUsername(username)
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user", username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = store.NormalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.Invalid("password", "required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NotFound("user", username)
	}
	return nil
}

// productWriteError turns unique violations on sku or barcode into
// validation errors.
func productWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "barcode") {
			return domain.Invalid("barcode", "duplicate")
		}
		return domain.Invalid("sku", "duplicate")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	t := val.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
