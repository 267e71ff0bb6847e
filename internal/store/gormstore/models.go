package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"grosirpos/backend/internal/domain"
)

type productRow struct {
	ID                  string  `gorm:"primaryKey;size:64"`
	SKU                 string  `gorm:"size:64;not null;uniqueIndex"`
	Barcode             *string `gorm:"size:64;uniqueIndex"`
	Name                string  `gorm:"size:255;not null"`
	Category            string  `gorm:"size:128;index"`
	Description         string  `gorm:"size:1024"`
	Unit                string  `gorm:"size:32"`
	CostPriceCents      int64
	RetailPriceCents    int64
	WholesalePriceCents int64
	MinWholesaleQty     int
	StockLevel          int
	AlertLevel          int
	CreatedAt           time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime:false"`
}

func (productRow) TableName() string { return "products" }

func productFromDomain(p domain.Product) productRow {
	return productRow{
		ID: p.ID, SKU: p.SKU, Barcode: nullString(p.Barcode), Name: p.Name, Category: p.Category,
		Description: p.Description, Unit: p.Unit, CostPriceCents: p.CostPriceCents,
		RetailPriceCents: p.RetailPriceCents, WholesalePriceCents: p.WholesalePriceCents,
		MinWholesaleQty: p.MinWholesaleQty, StockLevel: p.StockLevel, AlertLevel: p.AlertLevel,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID: r.ID, SKU: r.SKU, Barcode: stringOf(r.Barcode), Name: r.Name, Category: r.Category,
		Description: r.Description, Unit: r.Unit, CostPriceCents: r.CostPriceCents,
		RetailPriceCents: r.RetailPriceCents, WholesalePriceCents: r.WholesalePriceCents,
		MinWholesaleQty: r.MinWholesaleQty, StockLevel: r.StockLevel, AlertLevel: r.AlertLevel,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type receiptRow struct {
	ID            string  `gorm:"primaryKey;size:64"`
	ProductID     string  `gorm:"size:64;not null;index"`
	VendorID      *string `gorm:"size:64"`
	Quantity      int
	UnitCostCents int64
	BatchNumber   string `gorm:"size:64"`
	ExpiryDate    *time.Time
	ReceivedBy    string    `gorm:"size:64"`
	ReceivedAt    time.Time `gorm:"index"`
}

func (receiptRow) TableName() string { return "inventory_receipts" }

func receiptFromDomain(r domain.InventoryReceipt) receiptRow {
	return receiptRow{
		ID: r.ID, ProductID: r.ProductID, VendorID: nullString(r.VendorID), Quantity: r.Quantity,
		UnitCostCents: r.UnitCostCents, BatchNumber: r.BatchNumber, ExpiryDate: r.ExpiryDate,
		ReceivedBy: r.ReceivedBy, ReceivedAt: r.ReceivedAt,
	}
}

func (r receiptRow) toDomain() domain.InventoryReceipt {
	out := domain.InventoryReceipt{
		ID: r.ID, ProductID: r.ProductID, VendorID: stringOf(r.VendorID), Quantity: r.Quantity,
		UnitCostCents: r.UnitCostCents, BatchNumber: r.BatchNumber, ReceivedBy: r.ReceivedBy,
		ReceivedAt: r.ReceivedAt.UTC(),
	}
	if r.ExpiryDate != nil {
		e := r.ExpiryDate.UTC()
		out.ExpiryDate = &e
	}
	return out
}

type saleRow struct {
	ID                string  `gorm:"primaryKey;size:64"`
	IdempotencyKey    string  `gorm:"size:128;not null;uniqueIndex"`
	TerminalID        string  `gorm:"size:64"`
	CustomerID        *string `gorm:"size:64;index"`
	CustomerName      string  `gorm:"size:255"`
	Channel           string  `gorm:"size:16;not null"`
	SubtotalCents     int64
	DiscountCents     int64
	TaxRatePercent    decimal.Decimal `gorm:"type:decimal(7,4)"`
	TaxCents          int64
	TotalCents        int64
	CashReceivedCents int64
	ChangeCents       int64
	PaymentMethod     string `gorm:"size:16;not null"`
	Status            string `gorm:"size:16;not null"`
	RefundReason      string `gorm:"size:255"`
	RefundedAt        *time.Time
	CreatedBy         string        `gorm:"size:64"`
	CreatedAt         time.Time     `gorm:"autoCreateTime:false;index"`
	Items             []saleItemRow `gorm:"foreignKey:SaleID"`
}

func (saleRow) TableName() string { return "sales" }

type saleItemRow struct {
	SaleID         string `gorm:"primaryKey;size:64"`
	LineNo         int    `gorm:"primaryKey;autoIncrement:false"`
	ProductID      string `gorm:"size:64;not null;index"`
	ProductName    string `gorm:"size:255"`
	Quantity       int
	UnitPriceCents int64
	SubtotalCents  int64
}

func (saleItemRow) TableName() string { return "sale_items" }

func saleFromDomain(s domain.Sale) saleRow {
	row := saleRow{
		ID: s.ID, IdempotencyKey: s.IdempotencyKey, TerminalID: s.TerminalID,
		CustomerID: nullString(s.CustomerID), CustomerName: s.CustomerName, Channel: string(s.Channel),
		SubtotalCents: s.SubtotalCents, DiscountCents: s.DiscountCents, TaxRatePercent: s.TaxRatePercent,
		TaxCents: s.TaxCents, TotalCents: s.TotalCents, CashReceivedCents: s.CashReceivedCents,
		ChangeCents: s.ChangeCents, PaymentMethod: string(s.PaymentMethod), Status: string(s.Status),
		RefundReason: s.RefundReason, RefundedAt: s.RefundedAt, CreatedBy: s.CreatedBy, CreatedAt: s.CreatedAt,
	}
	row.Items = make([]saleItemRow, 0, len(s.Items))
	for i, item := range s.Items {
		row.Items = append(row.Items, saleItemRow{
			SaleID: s.ID, LineNo: i + 1, ProductID: item.ProductID, ProductName: item.ProductName,
			Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents, SubtotalCents: item.SubtotalCents,
		})
	}
	return row
}

func (r saleRow) toDomain() domain.Sale {
	sale := domain.Sale{
		ID: r.ID, IdempotencyKey: r.IdempotencyKey, TerminalID: r.TerminalID,
		CustomerID: stringOf(r.CustomerID), CustomerName: r.CustomerName, Channel: domain.Channel(r.Channel),
		SubtotalCents: r.SubtotalCents, DiscountCents: r.DiscountCents, TaxRatePercent: r.TaxRatePercent,
		TaxCents: r.TaxCents, TotalCents: r.TotalCents, CashReceivedCents: r.CashReceivedCents,
		ChangeCents: r.ChangeCents, PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		Status: domain.SaleStatus(r.Status), RefundReason: r.RefundReason, CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.RefundedAt != nil {
		at := r.RefundedAt.UTC()
		sale.RefundedAt = &at
	}
	sale.Items = make([]domain.SaleItem, 0, len(r.Items))
	for _, item := range r.Items {
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID: item.ProductID, ProductName: item.ProductName, Quantity: item.Quantity,
			UnitPriceCents: item.UnitPriceCents, SubtotalCents: item.SubtotalCents,
		})
	}
	return sale
}

type customerRow struct {
	ID                      string `gorm:"primaryKey;size:64"`
	Name                    string `gorm:"size:255;not null"`
	Phone                   string `gorm:"size:32;not null"`
	Email                   string `gorm:"size:255"`
	Type                    string `gorm:"size:16;not null"`
	TotalSpentCents         int64
	CreditLimitCents        int64
	OutstandingBalanceCents int64
	CreatedAt               time.Time `gorm:"autoCreateTime:false"`
}

func (customerRow) TableName() string { return "customers" }

func customerFromDomain(c domain.Customer) customerRow {
	return customerRow{
		ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email, Type: string(c.Type),
		TotalSpentCents: c.TotalSpentCents, CreditLimitCents: c.CreditLimitCents,
		OutstandingBalanceCents: c.OutstandingBalanceCents, CreatedAt: c.CreatedAt,
	}
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email, Type: domain.Channel(r.Type),
		TotalSpentCents: r.TotalSpentCents, CreditLimitCents: r.CreditLimitCents,
		OutstandingBalanceCents: r.OutstandingBalanceCents, CreatedAt: r.CreatedAt.UTC(),
	}
}

type vendorRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	Name          string    `gorm:"size:255;not null"`
	ContactPerson string    `gorm:"size:255;not null"`
	Phone         string    `gorm:"size:32;not null"`
	Email         string    `gorm:"size:255"`
	Address       string    `gorm:"size:512"`
	TaxID         string    `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
}

func (vendorRow) TableName() string { return "vendors" }

func (r vendorRow) toDomain() domain.Vendor {
	return domain.Vendor{
		ID: r.ID, Name: r.Name, ContactPerson: r.ContactPerson, Phone: r.Phone, Email: r.Email,
		Address: r.Address, TaxID: r.TaxID, CreatedAt: r.CreatedAt.UTC(),
	}
}

type settingsRow struct {
	ID             uint            `gorm:"primaryKey;autoIncrement:false"`
	StoreName      string          `gorm:"size:255"`
	Address        string          `gorm:"size:512"`
	Phone          string          `gorm:"size:32"`
	Email          string          `gorm:"size:255"`
	ReceiptHeader  string          `gorm:"size:512"`
	ReceiptFooter  string          `gorm:"size:512"`
	Currency       string          `gorm:"size:8"`
	TaxRatePercent decimal.Decimal `gorm:"type:decimal(7,4)"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime:false"`
}

func (settingsRow) TableName() string { return "store_settings" }

type auditLogRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	ActorUsername string    `gorm:"size:64"`
	ActorRole     string    `gorm:"size:16"`
	Action        string    `gorm:"size:64"`
	EntityType    string    `gorm:"size:64"`
	EntityID      string    `gorm:"size:64"`
	Detail        string    `gorm:"size:1024"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
}

func (auditLogRow) TableName() string { return "audit_logs" }

type userRow struct {
	Username  string `gorm:"primaryKey;size:64"`
	Password  string `gorm:"size:255;not null"`
	Role      string `gorm:"size:16;not null"`
	Active    bool
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "app_users" }

func (r userRow) toDomain() domain.UserAccount {
	return domain.UserAccount{
		Username: r.Username, Password: r.Password, Role: r.Role, Active: r.Active,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func nullString(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

func stringOf(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
