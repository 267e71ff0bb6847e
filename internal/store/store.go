package store

import (
	"context"
	"time"

	"grosirpos/backend/internal/domain"
)

// Snapshot is one consistent read of the ledger. Sales cover the requested
// window in every status; products and customers are complete.
type Snapshot struct {
	Products  []domain.Product
	Sales     []domain.Sale
	Customers []domain.Customer
	TakenAt   time.Time
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// GetProductByCode matches a barcode first, then a SKU.
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	// CreateProduct inserts a product and, when opening is non-nil, its
	// opening receipt in the same unit of work: either both land or neither.
	CreateProduct(ctx context.Context, product domain.Product, opening *domain.InventoryReceipt) (*domain.Product, error)
	// UpdateProduct writes descriptive and price fields only. Stock level and
	// cost basis are owned by ReceiveStock, CommitSale and RefundSale.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ReceiveStock(ctx context.Context, receipt domain.InventoryReceipt) (*domain.InventoryReceipt, *domain.Product, error)
	ListReceipts(ctx context.Context, productID string, limit int) ([]domain.InventoryReceipt, error)

	// CommitSale deducts stock for every line, charges the customer and
	// records the sale in one atomic step. A sale whose idempotency key was
	// already committed is returned as stored with replayed set.
	CommitSale(ctx context.Context, sale domain.Sale) (committed *domain.Sale, replayed bool, err error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	RefundSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	ListVendors(ctx context.Context) ([]domain.Vendor, error)

	// GetSettings returns a NotFoundError until settings are first saved.
	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	Snapshot(ctx context.Context, from time.Time, to time.Time) (Snapshot, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
